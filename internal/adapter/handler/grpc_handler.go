package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "catalog.CatalogService"

// Pinger checks one dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type ComponentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type HealthReport struct {
	Status     string            `json:"status"`
	Components []ComponentStatus `json:"components"`
}

func (r HealthReport) Healthy() bool { return r.Status == "ok" }

// HealthReporter probes dependencies and publishes the result through the
// standard gRPC health service.
type HealthReporter struct {
	pingers map[string]Pinger
	timeout time.Duration
	server  *health.Server
	log     *zap.Logger

	mu   sync.RWMutex
	last HealthReport
}

func NewHealthReporter(pingers map[string]Pinger, timeout time.Duration, log *zap.Logger) *HealthReporter {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthReporter{
		pingers: pingers,
		timeout: timeout,
		server:  health.NewServer(),
		log:     log.Named("health"),
	}
}

// Register attaches the health service to s.
func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Check pings every dependency and updates the serving status.
func (h *HealthReporter) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.pingers))
	for name := range h.pingers {
		names = append(names, name)
	}
	sort.Strings(names)

	report := HealthReport{Status: "ok", Components: make([]ComponentStatus, len(names))}
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cs := ComponentStatus{Name: name, Status: "ok"}
			if err := h.pingers[name].Ping(ctx); err != nil {
				cs.Status = "down"
				cs.Error = err.Error()
			}
			report.Components[i] = cs
		}()
	}
	wg.Wait()

	for _, cs := range report.Components {
		if cs.Status != "ok" {
			report.Status = "degraded"
		}
	}

	h.publish(report)
	return report
}

// Run re-checks on every tick until ctx ends.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	h.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Shutdown reports NOT_SERVING to every watcher.
func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthReporter) Last() HealthReport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

func (h *HealthReporter) publish(report HealthReport) {
	h.mu.Lock()
	prev := h.last
	h.last = report
	h.mu.Unlock()

	status := healthpb.HealthCheckResponse_SERVING
	if !report.Healthy() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)

	if prev.Status != report.Status {
		h.log.Info("health changed", zap.String("status", report.Status), zap.Any("components", report.Components))
	}
}
