// Package telemetry exposes the engine's debug surface: pprof on one port and
// a JSON snapshot of process runtime stats on another. Both bind to localhost;
// these are operator tools, not public API.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/framefold/canvas/common/logger"
)

// Telemetry owns the debug listeners. Nothing binds until Start.
type Telemetry struct {
	log         *logger.Logger
	pprofAddr   string
	metricsAddr string
	started     time.Time
}

// New configures the telemetry endpoints.
func New(pprofPort, metricsPort int, log *logger.Logger) *Telemetry {
	return &Telemetry{
		log:         log,
		pprofAddr:   fmt.Sprintf("localhost:%d", pprofPort),
		metricsAddr: fmt.Sprintf("localhost:%d", metricsPort),
	}
}

// Start brings up both listeners and stops them when ctx is cancelled.
// Listen failures are logged rather than returned; a dead debug port must
// never take the engine down with it.
func (t *Telemetry) Start(ctx context.Context) error {
	t.started = time.Now()

	pprofMux := http.NewServeMux()
	pprofMux.HandleFunc("/debug/pprof/", pprof.Index)
	pprofMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	pprofMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	pprofMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	pprofMux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/metrics", t.handleMetrics)

	t.serve(ctx, "pprof", t.pprofAddr, pprofMux)
	t.serve(ctx, "metrics", t.metricsAddr, metricsMux)

	return nil
}

func (t *Telemetry) serve(ctx context.Context, name, addr string, handler http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		t.log.Info(name+" endpoint starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error(name+" endpoint error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// runtimeStats is the /metrics payload. Heap numbers matter here because
// generated media is staged in memory between generations.
type runtimeStats struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Goroutines     int     `json:"goroutines"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	HeapSysBytes   uint64  `json:"heap_sys_bytes"`
	GCRuns         uint32  `json:"gc_runs"`
	LastGCPauseNs  uint64  `json:"last_gc_pause_ns"`
}

func (t *Telemetry) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := runtimeStats{
		UptimeSeconds:  time.Since(t.started).Seconds(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: m.HeapAlloc,
		HeapSysBytes:   m.HeapSys,
		GCRuns:         m.NumGC,
	}
	if m.NumGC > 0 {
		stats.LastGCPauseNs = m.PauseNs[(m.NumGC+255)%256]
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		t.log.Error("failed to write metrics response", "error", err)
	}
}
