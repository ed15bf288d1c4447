// Package rpc defines the JSON messages exchanged with the editor and a
// line delimited transport for them: one JSON value per line.
package rpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/sourcegraph/zfind/printer"
)

// Methods understood by the server. Key bindings are methods too.
const (
	MethodNewSession = "new_session"
	MethodOnTyped    = "on_typed"
	MethodOnMove     = "on_move"
	MethodExit       = "exit"
	MethodTerminate  = "terminate"

	KeyCR        = "cr"
	KeyTab       = "tab"
	KeyBackspace = "backspace"
	KeyShiftUp   = "shift-up"
	KeyShiftDown = "shift-down"
	KeyCtrlN     = "ctrl-n"
	KeyCtrlP     = "ctrl-p"
)

// Message is an inbound request. Notifications have no id.
type Message struct {
	ID        uint64          `json:"id,omitempty"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID uint64          `json:"session_id"`
}

// IsNotification reports whether m expects no response.
func (m *Message) IsNotification() bool {
	return m.ID == 0
}

// DecodeParams unmarshals the params of m into v. Missing params leave v
// untouched.
func (m *Message) DecodeParams(v any) error {
	if len(m.Params) == 0 || string(m.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(m.Params, v); err != nil {
		return fmt.Errorf("%s params: %w", m.Method, err)
	}
	return nil
}

// Error is the error payload of a failed request.
type Error struct {
	Message string `json:"message"`

	// Kind classifies the failure, for example "io" or "setup".
	Kind string `json:"kind,omitempty"`

	// RequestID correlates the failure with the server log.
	RequestID string `json:"request_id,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Response is an outbound message. Results pushed without a request, such
// as the first lines of a populated session, have no id.
type Response struct {
	ID         uint64 `json:"id,omitempty"`
	SessionID  uint64 `json:"session_id,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
	Result     any    `json:"result,omitempty"`
	Error      *Error `json:"error,omitempty"`
}

// OnTyped is the result of a query.
type OnTyped struct {
	Event        string               `json:"event"`
	Total        int                  `json:"total"`
	Lines        []string             `json:"lines"`
	Indices      [][]int              `json:"indices"`
	TruncatedMap printer.TruncatedMap `json:"truncated_map,omitempty"`

	// Done is false for partial results of a running query.
	Done bool `json:"done"`
}

// NewOnTyped returns the result for decorated lines out of total matches.
func NewOnTyped(total int, d printer.Lines, done bool) *OnTyped {
	r := &OnTyped{
		Event:   MethodOnTyped,
		Total:   total,
		Lines:   d.Lines,
		Indices: d.Indices,
		Done:    done,
	}
	if len(d.TruncatedMap) > 0 {
		r.TruncatedMap = d.TruncatedMap
	}
	return r
}

// OnMove is the preview of the current line.
type OnMove struct {
	Event  string   `json:"event"`
	Lines  []string `json:"lines"`
	Fname  string   `json:"fname,omitempty"`
	HiLnum int      `json:"hi_lnum,omitempty"`
	IsDir  bool     `json:"is_dir,omitempty"`

	// Syntax is the language of the previewed file.
	Syntax string `json:"syntax,omitempty"`
}

// OnInit pushes the first lines of a populated session.
type OnInit struct {
	Event string   `json:"event"`
	Total int      `json:"total"`
	Lines []string `json:"lines"`
}

// Query is pushed when the input history replaces the query.
type Query struct {
	Event string `json:"event"`
	Query string `json:"query"`
}

// Reader reads one message per line.
type Reader struct {
	sc *bufio.Scanner
}

// MaxMessageSize bounds an inbound line.
const MaxMessageSize = 16 << 20

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)
	return &Reader{sc: sc}
}

// DecodeError is returned for a line that is not a message. Reading can
// continue after it.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed message %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Next returns the next message. It returns io.EOF at the end of input and
// a *DecodeError for malformed lines. Blank lines are skipped.
func (r *Reader) Next() (*Message, error) {
	for r.sc.Scan() {
		line := r.sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, &DecodeError{Line: string(line), Err: err}
		}
		return &m, nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Writer serialises responses. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &Writer{w: bw, enc: enc}
}

// Write writes r as one line and flushes it.
func (w *Writer) Write(r *Response) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(r); err != nil {
		return err
	}
	return w.w.Flush()
}
