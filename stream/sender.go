// Package stream delivers partial search results to a consumer.
package stream

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/sourcegraph/zfind"
)

// Sender is the interface that wraps the basic Send method.
type Sender interface {
	Send(sr *zfind.SearchResult)
}

// SenderFunc is an adapter to allow the use of ordinary functions as Senders. If
// f is a function with the appropriate signature, SenderFunc(f) is a Sender that
// calls f.
type SenderFunc func(result *zfind.SearchResult)

func (f SenderFunc) Send(result *zfind.SearchResult) {
	f(result)
}

// Gate forwards results only while their generation is current. Once
// Advance or Cancel returns, no result of an older generation reaches the
// wrapped sender, even one that was being produced concurrently.
type Gate struct {
	sender Sender

	mu  sync.Mutex
	gen atomic.Uint64
}

// NewGate returns a gate in front of s.
func NewGate(s Sender) *Gate {
	return &Gate{sender: s}
}

// Advance starts a new generation and returns it.
func (g *Gate) Advance() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen.Inc()
}

// Cancel supersedes the current generation without starting a new one.
func (g *Gate) Cancel() {
	g.Advance()
}

// Current returns the current generation.
func (g *Gate) Current() uint64 {
	return g.gen.Load()
}

// Sender returns a sender for generation gen. It stamps results with gen
// and drops them once gen is superseded.
func (g *Gate) Sender(gen uint64) Sender {
	return SenderFunc(func(sr *zfind.SearchResult) {
		g.Send(gen, sr)
	})
}

// Send delivers sr if gen is current and reports whether it did.
func (g *Gate) Send(gen uint64, sr *zfind.SearchResult) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gen.Load() != gen {
		return false
	}
	sr.Generation = gen
	g.sender.Send(sr)
	return true
}
