package session

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	sglog "github.com/sourcegraph/log"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/sourcegraph/zfind/rpc"
)

// Manager owns the sessions of a server. At most one session is active:
// opening a session terminates the others.
type Manager struct {
	deps   Deps
	logger sglog.Logger

	// sessionLog, if not nil, receives one TSV line per session start and
	// termination.
	sessionLog io.Writer

	mu       sync.Mutex
	sessions map[uint64]*Session
}

func NewManager(deps Deps, sessionLog io.Writer) *Manager {
	deps.setDefaults()
	return &Manager{
		deps:       deps,
		logger:     deps.Logger.Scoped("manager", "session manager"),
		sessionLog: sessionLog,
		sessions:   map[uint64]*Session{},
	}
}

// NewSession terminates every session and starts session id from the
// params of m.
func (mg *Manager) NewSession(id uint64, m *rpc.Message) (*Session, error) {
	preview := 5
	if mg.deps.Config != nil {
		preview = mg.deps.Config.Get().Preview.Size
	}
	sc, err := ParseContext(m, preview)
	if err != nil {
		return nil, err
	}

	mg.TerminateAll()

	s := newSession(id, sc, mg.deps)
	mg.mu.Lock()
	mg.sessions[id] = s
	mg.mu.Unlock()

	s.start()
	mg.log("start", s)
	mg.logger.Debug("session started",
		sglog.Int("session", int(id)),
		sglog.String("provider", sc.ProviderID),
		sglog.String("cwd", sc.Cwd))
	return s, nil
}

// Send routes m to session id. It reports false if there is no such
// session.
func (mg *Manager) Send(id uint64, m *rpc.Message, reqID string) bool {
	mg.mu.Lock()
	s, ok := mg.sessions[id]
	mg.mu.Unlock()
	if !ok {
		return false
	}
	return s.send(event{msg: m, reqID: reqID})
}

// Terminate stops session id. It reports false if there is no such session.
func (mg *Manager) Terminate(id uint64) bool {
	mg.mu.Lock()
	s, ok := mg.sessions[id]
	delete(mg.sessions, id)
	mg.mu.Unlock()
	if !ok {
		return false
	}
	s.terminate()
	mg.log("terminate", s)
	return true
}

// TerminateAll stops every session.
func (mg *Manager) TerminateAll() {
	for _, id := range mg.Sessions() {
		mg.Terminate(id)
	}
}

// Sessions returns the ids of the open sessions in ascending order.
func (mg *Manager) Sessions() []uint64 {
	mg.mu.Lock()
	ids := maps.Keys(mg.sessions)
	mg.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Get returns session id.
func (mg *Manager) Get(id uint64) (*Session, bool) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	s, ok := mg.sessions[id]
	return s, ok
}

func (mg *Manager) log(action string, s *Session) {
	if mg.sessionLog == nil {
		return
	}
	_, _ = fmt.Fprintf(mg.sessionLog, "%s\t%s\t%d\t%s\t%s\t%s\n",
		time.Now().UTC().Format(time.RFC3339), action, s.id, s.sc.ProviderID, time.Since(s.started).Round(time.Millisecond), s.sc.Cwd)
}

// ServeHTTP lists the open sessions as TSV.
func (mg *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, id := range mg.Sessions() {
		s, ok := mg.Get(id)
		if !ok {
			continue
		}
		total, _ := s.total()
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", id, s.sc.ProviderID, s.State(), total, time.Since(s.started).Round(time.Second))
	}
}
