package profiler

import (
	"log"
	"net/http"
	"net/http/pprof"
	"time"
)

// DefaultAddress is used when InitialiseProfiler is called with an empty
// address — the gateway only exposes this on loopback, never on the
// public-facing listener cfg.Server binds.
const DefaultAddress = "localhost:19841"

// InitialiseProfiler sets up the HTTP server for pprof profiling, binding to
// address (falling back to DefaultAddress when empty).
func InitialiseProfiler(address string) {
	if address == "" {
		address = DefaultAddress
	}
	http.DefaultServeMux = http.NewServeMux()
	go func() {
		server := &http.Server{
			Addr:         address,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		http.HandleFunc("/debug/pprof/", pprof.Index)
		http.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		http.HandleFunc("/debug/pprof/profile", pprof.Profile)
		http.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		http.HandleFunc("/debug/pprof/trace", pprof.Trace)

		log.Println("Profiler is running on", address)
		log.Println(server.ListenAndServe())
	}()
}
