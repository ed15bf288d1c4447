// Package job deduplicates background work, such as forerunner commands,
// that several sessions could start for the same target.
package job

import (
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	metricReservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zfind_job_reservations_total",
		Help: "The total number of background job reservations.",
	}, []string{"result"}) // result=reserved|duplicate

	metricRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zfind_jobs_running",
		Help: "The number of background jobs currently reserved.",
	})
)

// ID identifies a job by what it does, not by who started it.
type ID uint64

// NewID hashes parts, typically the working directory and a command line.
func NewID(parts ...string) ID {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}
	return ID(d.Sum64())
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 16)
}

// Registry tracks running jobs. The zero value is not usable, use
// NewRegistry.
type Registry struct {
	mu      sync.Mutex
	running map[ID]time.Time
}

func NewRegistry() *Registry {
	return &Registry{running: map[ID]time.Time{}}
}

// Reserve marks id as running. It returns false if id is already running,
// in which case the caller must not start it.
func (r *Registry) Reserve(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[id]; ok {
		metricReservations.WithLabelValues("duplicate").Inc()
		return false
	}
	r.running[id] = time.Now()
	metricReservations.WithLabelValues("reserved").Inc()
	metricRunning.Inc()
	return true
}

// Release marks id as finished.
func (r *Registry) Release(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[id]; ok {
		delete(r.running, id)
		metricRunning.Dec()
	}
}

// Go runs fn in a new goroutine unless id is already running. The
// reservation is released when fn returns.
func (r *Registry) Go(id ID, fn func()) bool {
	if !r.Reserve(id) {
		return false
	}
	go func() {
		defer r.Release(id)
		fn()
	}()
	return true
}

// Running returns the ids of the running jobs in ascending order.
func (r *Registry) Running() []ID {
	r.mu.Lock()
	ids := maps.Keys(r.running)
	r.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Since returns when id was reserved.
func (r *Registry) Since(id ID) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.running[id]
	return t, ok
}
