package session

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/sourcegraph/zfind/rpc"
)

// State is the lifecycle stage of a session.
type State uint8

const (
	Created State = iota
	// Populating runs the forerunner command of the session.
	Populating
	Interactive
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Populating:
		return "populating"
	case Interactive:
		return "interactive"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// SetupError is returned when new_session params are unusable. No session
// is created.
type SetupError struct {
	Reason string
}

func (e *SetupError) Error() string {
	return "session setup: " + e.Reason
}

// Context is what a session is opened with.
type Context struct {
	Cwd        string
	ProviderID string

	// SourceCmd is the forerunner command listing the lines, if any.
	SourceCmd string

	// StartBufferPath is the file the session was opened from.
	StartBufferPath string

	WinWidth    int
	WinHeight   int
	PreviewSize int

	// Debounce delays queries and moves according to the source size.
	Debounce bool
}

type newSessionParams struct {
	Cwd              string `json:"cwd"`
	ProviderID       string `json:"provider_id"`
	SourceCmd        string `json:"source_cmd"`
	SourceFpath      string `json:"source_fpath"`
	DisplayWinwidth  *int   `json:"display_winwidth"`
	DisplayWinheight *int   `json:"display_winheight"`
	PreviewSize      *int   `json:"preview_size"`
	Debounce         *bool  `json:"debounce"`

	// EnableIcon is accepted and ignored, icons are painted by the editor.
	EnableIcon bool `json:"enable_icon"`
}

// ParseContext reads the params of a new_session message. defaultPreview
// is used when the params name no preview size.
func ParseContext(m *rpc.Message, defaultPreview int) (Context, error) {
	var p newSessionParams
	if err := m.DecodeParams(&p); err != nil {
		return Context{}, &SetupError{Reason: err.Error()}
	}
	if p.Cwd == "" {
		return Context{}, &SetupError{Reason: "missing cwd"}
	}
	if p.ProviderID == "" {
		return Context{}, &SetupError{Reason: "missing provider_id"}
	}

	c := Context{
		Cwd:             filepath.Clean(p.Cwd),
		ProviderID:      p.ProviderID,
		SourceCmd:       p.SourceCmd,
		StartBufferPath: p.SourceFpath,
		WinWidth:        intOr(p.DisplayWinwidth, 100),
		WinHeight:       intOr(p.DisplayWinheight, 30),
		PreviewSize:     intOr(p.PreviewSize, defaultPreview),
		Debounce:        p.Debounce == nil || *p.Debounce,
	}
	if c.WinWidth <= 0 || c.WinHeight <= 0 {
		return Context{}, &SetupError{Reason: fmt.Sprintf("bad display size %dx%d", c.WinWidth, c.WinHeight)}
	}
	if c.StartBufferPath != "" && !filepath.IsAbs(c.StartBufferPath) {
		c.StartBufferPath = filepath.Join(c.Cwd, c.StartBufferPath)
	}
	return c, nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// typedDelay is the debounce of on_typed for a source of total lines.
// Unknown sizes are treated as large.
func typedDelay(total int, known bool) time.Duration {
	switch {
	case !known:
		return 200 * time.Millisecond
	case total < 10_000:
		return 10 * time.Millisecond
	case total < 100_000:
		return 50 * time.Millisecond
	case total < 200_000:
		return 100 * time.Millisecond
	}
	return 200 * time.Millisecond
}

const moveDelay = 50 * time.Millisecond
