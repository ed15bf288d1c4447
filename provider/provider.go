// Package provider describes the named sources a session can be opened on
// and how each ranks and previews its lines.
package provider

import (
	"fmt"
	"sync"

	"github.com/sourcegraph/zfind/bonus"
	"github.com/sourcegraph/zfind/item"
	"github.com/sourcegraph/zfind/languages"
)

// Kind is the closed set of provider behaviours.
type Kind uint8

const (
	// Generic lists the output of a command.
	Generic Kind = iota
	// Files lists file paths relative to the working directory.
	Files
	// Grep lists "path:lnum:col:line" matches found by walking files.
	Grep
	// Blines lists the lines of the start buffer.
	Blines
	// RecentFiles lists the files opened recently.
	RecentFiles
	// FilerKind browses the directory tree.
	FilerKind
)

func (k Kind) String() string {
	switch k {
	case Files:
		return "files"
	case Grep:
		return "grep"
	case Blines:
		return "blines"
	case RecentFiles:
		return "recent_files"
	case FilerKind:
		return "filer"
	}
	return "generic"
}

// Registry maps provider ids to kinds. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewRegistry returns a registry holding the built-in providers.
func NewRegistry() *Registry {
	r := &Registry{kinds: map[string]Kind{}}
	for id, k := range map[string]Kind{
		"files":        Files,
		"git_files":    Files,
		"grep":         Grep,
		"live_grep":    Grep,
		"blines":       Blines,
		"recent_files": RecentFiles,
		"filer":        FilerKind,
		"tags":         Generic,
		"proj_tags":    Generic,
	} {
		r.Register(id, k)
	}
	return r
}

// Register adds a provider. Registering an id twice is a programming error
// and panics.
func (r *Registry) Register(id string, k Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[id]; ok {
		panic(fmt.Sprintf("provider %q registered twice", id))
	}
	r.kinds[id] = k
}

// Kind returns the kind of id. Unknown ids are Generic.
func (r *Registry) Kind(id string) Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kinds[id]
}

// Env is what the defaults of a provider may depend on.
type Env struct {
	Cwd string

	// StartBufferPath is the file the session was opened from.
	StartBufferPath string

	// Recent are the recently opened files, best first.
	Recent []string
}

// Defaults is how a provider ranks its lines.
type Defaults struct {
	ItemKind item.Kind
	Bonuses  []bonus.Bonus
}

// DefaultsFor returns the ranking defaults of the provider id.
func DefaultsFor(id string, env Env) Defaults {
	switch id {
	case "grep", "live_grep":
		return Defaults{ItemKind: item.GrepLine}
	case "tags", "proj_tags":
		return Defaults{ItemKind: item.TagLine}
	case "files", "git_files", "filer":
		return Defaults{Bonuses: []bonus.Bonus{bonus.NewFileName()}}
	case "recent_files":
		return Defaults{Bonuses: []bonus.Bonus{bonus.NewRecentFiles(env.Recent), bonus.NewCwd(env.Cwd)}}
	case "blines":
		if ext := languages.Ext(env.StartBufferPath); ext != "" {
			return Defaults{Bonuses: []bonus.Bonus{bonus.NewLanguage(ext)}}
		}
	}
	return Defaults{}
}
