package core

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HealthStatus is the readiness payload served over HTTP.
type HealthStatus struct {
	Status        string  `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds int64   `json:"uptime_seconds"`
	CameraState   string  `json:"camera_state"`
	CameraOpen    bool    `json:"camera_open"`
	FPSReal       float64 `json:"fps_real"`
	Viewers       int     `json:"viewers"`
	Cycles        uint64  `json:"cycles"`
	Faults        uint64  `json:"faults"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Viewers connect from local dashboards on arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HealthCheck assembles the current readiness view.
func (p *Pipeline) HealthCheck() HealthStatus {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	stats := p.source.Stats()
	status := HealthStatus{
		Status:      "healthy",
		CameraState: p.health.State().String(),
		CameraOpen:  stats.IsOpen,
		FPSReal:     stats.FPSReal,
		Viewers:     p.dist.ViewerCount(),
		Cycles:      atomic.LoadUint64(&p.cycles),
		Faults:      atomic.LoadUint64(&p.faults),
	}
	if !started.IsZero() {
		status.UptimeSeconds = int64(p.clk.Now().Sub(started).Seconds())
	}

	if !p.running.Load() {
		status.Status = "unhealthy"
	} else if status.CameraState != "connected" {
		status.Status = "degraded"
	}
	return status
}

// LivenessHandler serves /health. Returns 200 whenever the process can
// answer at all.
func (p *Pipeline) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": p.HealthCheck().UptimeSeconds,
	})
}

// ReadinessHandler serves /readiness with the full HealthStatus. The
// pipeline stays ready while degraded; only a stopped worker is 503.
func (p *Pipeline) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := p.HealthCheck()
	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// ViewerHandler serves /ws. Each connection gets its own relay slot in
// the distributor, so a stalled websocket never holds back the worker
// or the other viewers.
func (p *Pipeline) ViewerHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("viewer upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	id := uuid.New().String()
	viewer, err := p.dist.Attach(id)
	if err != nil {
		slog.Warn("viewer attach failed", "error", err)
		conn.Close()
		return
	}

	slog.Info("viewer connected", "viewer_id", id, "remote", r.RemoteAddr)

	// Read pump: we never expect client data, but reading is the only
	// way to notice a close.
	go func() {
		defer viewer.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	relayTimeout := time.Duration(p.cfg.Viewer.RelayTimeoutMS) * time.Millisecond
	defer func() {
		viewer.Close()
		conn.Close()
		slog.Info("viewer disconnected", "viewer_id", id)
	}()

	for {
		snap, ok := viewer.Receive(relayTimeout)
		if !ok {
			if viewer.Detached() {
				return
			}
			continue // poll timeout, check detach and wait again
		}
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}
}

// StartViewerServer starts the HTTP surface (health, readiness, and the
// websocket viewer endpoint) without blocking. The server is stopped by
// Shutdown.
func (p *Pipeline) StartViewerServer() {
	addr := p.cfg.Viewer.ListenAddr
	if addr == "" {
		slog.Info("viewer server disabled, no listen address configured")
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", p.LivenessHandler)
	mux.HandleFunc("/readiness", p.ReadinessHandler)
	mux.HandleFunc("/ws", p.ViewerHandler)

	p.httpSrv = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	slog.Info("starting viewer server",
		"addr", addr,
		"endpoints", []string{"/health", "/readiness", "/ws"},
	)

	go func() {
		if err := p.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("viewer server failed", "error", err)
		}
	}()
}
