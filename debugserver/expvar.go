package debugserver

import (
	"expvar"
	"fmt"
	"net/http"
	"runtime"
	"runtime/debug"
)

// expvarHandler is a copy of the handler registered by package expvar, so
// that it is served on our mux only.
func expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprintf(w, "{\n")
	first := true
	expvar.Do(func(kv expvar.KeyValue) {
		if !first {
			fmt.Fprintf(w, ",\n")
		}
		first = false
		fmt.Fprintf(w, "%q: %s", kv.Key, kv.Value)
	})
	fmt.Fprintf(w, "\n}\n")
}

func gcHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST is supported", http.StatusMethodNotAllowed)
		return
	}
	runtime.GC()
	fmt.Fprintln(w, "GC done")
}

func freeOSMemoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST is supported", http.StatusMethodNotAllowed)
		return
	}
	debug.FreeOSMemory()
	fmt.Fprintln(w, "freed OS memory")
}
