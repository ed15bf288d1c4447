package provider

import (
	"strings"
	"sync"
)

// MaxInputs is the number of queries remembered per provider.
const MaxInputs = 20

// InputRecorder remembers the queries typed in a provider and cycles through
// them.
type InputRecorder struct {
	inputs []string
	last   string
	cur    int
}

func NewInputRecorder(inputs []string) *InputRecorder {
	return &InputRecorder{inputs: inputs}
}

// Inputs returns the recorded queries, oldest first.
func (r *InputRecorder) Inputs() []string {
	return r.inputs
}

// TryRecord records q unless it is empty or already covered by a recorded
// query. A query extending the previous one replaces it, so typing "i",
// "in", "inp" records only "inp".
func (r *InputRecorder) TryRecord(q string) {
	q = strings.TrimSpace(q)
	if q == "" {
		return
	}
	for _, old := range r.inputs {
		if strings.HasPrefix(old, q) {
			return
		}
	}

	if strings.HasPrefix(q, r.last) {
		for i, old := range r.inputs {
			if old != r.last {
				continue
			}
			if r.cur >= i {
				r.cur = max(r.cur-1, 0)
			}
			r.inputs = append(r.inputs[:i], r.inputs[i+1:]...)
			break
		}
	}

	if len(r.inputs) > 0 {
		r.cur++
	}
	r.inputs = append(r.inputs, q)
	r.last = q

	if len(r.inputs) > MaxInputs {
		r.inputs = r.inputs[1:]
		r.cur = min(r.cur, len(r.inputs)-1)
	}
}

// Next returns the query after the current one, wrapping to the first.
func (r *InputRecorder) Next() (string, bool) {
	if len(r.inputs) == 0 {
		return "", false
	}
	r.cur = (r.cur + 1) % len(r.inputs)
	return r.inputs[r.cur], true
}

// Prev returns the query before the current one, wrapping to the last.
func (r *InputRecorder) Prev() (string, bool) {
	if len(r.inputs) == 0 {
		return "", false
	}
	if r.cur == 0 {
		r.cur = len(r.inputs) - 1
	} else {
		r.cur--
	}
	return r.inputs[r.cur], true
}

// History holds the input recorder of every provider. It outlives sessions
// and is safe for concurrent use.
type History struct {
	mu        sync.Mutex
	recorders map[string]*InputRecorder
}

func NewHistory() *History {
	return &History{recorders: map[string]*InputRecorder{}}
}

func (h *History) recorder(id string) *InputRecorder {
	r, ok := h.recorders[id]
	if !ok {
		r = NewInputRecorder(nil)
		h.recorders[id] = r
	}
	return r
}

// Record records q for the provider id.
func (h *History) Record(id, q string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorder(id).TryRecord(q)
}

// Next returns the next query of the provider id.
func (h *History) Next(id string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recorder(id).Next()
}

// Prev returns the previous query of the provider id.
func (h *History) Prev(id string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recorder(id).Prev()
}
