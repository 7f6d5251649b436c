package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tphakala/oscil-go/internal/conf"
	oerrors "github.com/tphakala/oscil-go/internal/errors"
	"github.com/tphakala/oscil-go/internal/logging"
	metricspkg "github.com/tphakala/oscil-go/internal/observability/metrics"
)

// Endpoint serves the Prometheus-compatible telemetry HTTP endpoint.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint creates a telemetry endpoint from the application settings.
// Returns an error when telemetry is disabled.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Realtime.Telemetry.Enabled {
		return nil, oerrors.Newf("telemetry not enabled in settings").
			Component("observability").
			Category(oerrors.CategoryConfiguration).
			Build()
	}

	return &Endpoint{
		listenAddress: settings.Realtime.Telemetry.Listen,
		metrics:       metrics,
	}, nil
}

// Start runs the telemetry HTTP server until quitChan closes.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) {
	logger := logging.ForService("telemetry")
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	e.server = &http.Server{
		Addr:    e.listenAddress,
		Handler: mux,
	}

	wg.Go(func() {
		logger.Info("telemetry endpoint starting", "address", e.listenAddress)
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("telemetry HTTP server error", "error", err)
		}
	})

	go e.gracefulShutdown(quitChan, logger)
}

// gracefulShutdown waits for the quit signal and shuts the server down.
func (e *Endpoint) gracefulShutdown(quitChan <-chan struct{}, logger *slog.Logger) {
	<-quitChan
	ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		logger.Error("telemetry server shutdown error", "error", err)
	}
}
