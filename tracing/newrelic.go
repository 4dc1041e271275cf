package tracing

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/giftcard/config"
)

const defaultShutdownTimeout = 5 * time.Second

// Tracer wraps the New Relic application. A tracer without a license key is disabled and every method is a no-op.
type Tracer struct {
	app     *newrelic.Application
	enabled bool
}

// NewTracer creates a new tracer
func NewTracer(cfg config.TracingConfig) (*Tracer, error) {
	if cfg.LicenseKey == "" {
		log.Warn().Msg("New Relic license key not provided, tracing will be disabled")
		return &Tracer{enabled: false}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(cfg.DistribTracing),
		newrelic.ConfigAppLogForwardingEnabled(cfg.LogEnabled),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize New Relic")
	}
	return &Tracer{app: app, enabled: true}, nil
}

// App returns the application for the gin middleware, or nil when disabled
func (t *Tracer) App() *newrelic.Application {
	if t == nil || !t.enabled {
		return nil
	}
	return t.app
}

// StartTransaction starts a background transaction and attaches it to ctx
func (t *Tracer) StartTransaction(ctx context.Context, name string) (context.Context, *newrelic.Transaction) {
	if t == nil || !t.enabled {
		return ctx, nil
	}
	txn := t.app.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), txn
}

// EndTransaction records err, if any, and ends txn
func (t *Tracer) EndTransaction(txn *newrelic.Transaction, err error) {
	if txn == nil {
		return
	}
	if err != nil {
		txn.NoticeError(err)
	}
	txn.End()
}

// StartSegment starts a segment on the transaction carried by ctx. The returned func ends it.
func StartSegment(ctx context.Context, name string) func() {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return func() {}
	}
	seg := txn.StartSegment(name)
	return seg.End
}

// Close flushes pending data
func (t *Tracer) Close() {
	if t == nil || !t.enabled {
		return
	}
	t.app.Shutdown(defaultShutdownTimeout)
	log.Info().Msg("New Relic tracer shutdown")
}
