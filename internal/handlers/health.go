package handlers

import (
	"context"
	"net/http"
	"time"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/platform/httpx"
)

const defaultReadyTimeout = 3 * time.Second

// HealthReporter collects dependency probe results for /readyz.
type HealthReporter interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	started  time.Time
	clock    func() time.Time
	timeout  time.Duration
	reporter HealthReporter
	version  string
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthReporter sets the dependency prober used by /readyz.
func WithHealthReporter(reporter HealthReporter) HealthOption {
	return func(h *HealthHandlers) {
		h.reporter = reporter
	}
}

// WithHealthVersion reports the build version in probe responses.
func WithHealthVersion(version string) HealthOption {
	return func(h *HealthHandlers) {
		h.version = version
	}
}

// WithHealthStartedAt sets the process start time used for uptime.
func WithHealthStartedAt(t time.Time) HealthOption {
	return func(h *HealthHandlers) {
		h.started = t
	}
}

// NewHealthHandlers constructs probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:   time.Now,
		timeout: defaultReadyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.started.IsZero() {
		h.started = h.clock()
	}
	return h
}

type dependencyPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

type healthResponse struct {
	Status    string                       `json:"status"`
	Version   string                       `json:"version,omitempty"`
	Uptime    string                       `json:"uptime"`
	Timestamp string                       `json:"timestamp"`
	Checks    map[string]dependencyPayload `json:"checks,omitempty"`
}

// Healthz reports liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.base(string(domain.HealthStatusOK)))
}

// Readyz probes dependencies. Degraded optional dependencies still report ready.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		httpx.WriteJSON(w, http.StatusOK, h.base(string(domain.HealthStatusOK)))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.reporter.Collect(ctx)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("unavailable", "health probes failed", http.StatusServiceUnavailable))
		return
	}
	resp := h.base(string(report.Status))
	resp.Checks = make(map[string]dependencyPayload, len(report.Checks))
	for name, check := range report.Checks {
		resp.Checks[name] = dependencyPayload{
			Status:    string(check.Status),
			Detail:    check.Detail,
			LatencyMS: check.Latency.Milliseconds(),
		}
	}
	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, resp)
}

func (h *HealthHandlers) base(status string) healthResponse {
	now := h.clock()
	return healthResponse{
		Status:    status,
		Version:   h.version,
		Uptime:    now.Sub(h.started).Truncate(time.Second).String(),
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}
