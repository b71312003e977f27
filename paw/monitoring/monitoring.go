package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	log "github.com/sirupsen/logrus"

	"github.com/prior-auth/paw-app/conf"
	"github.com/prior-auth/paw-app/paw/utils"
)

// Timer provides methods for timing coordinator actions and gateway calls.
// Typical usage:
//
//	timer := monitoring.GetTimer()
//	defer timer.Close()
//	ctx = monitoring.NewContext(ctx, timer)
//	ctx, close := monitoring.NewParent(ctx, "ExecuteNextAction")
//	defer close()
//	closeChild := monitoring.NewChild(ctx, "gateway:submit_pa")
//	// perform the gateway call
//	closeChild()
type Timer interface {
	new(parentCtx context.Context, name string) (ctx context.Context, close func())
	newChild(parentCtx context.Context, name string) (close func())

	// Close cleans up all resources associated with the Timer, flushing any
	// pending metrics.
	Close()
}

// To avoid collisions with other keys from other packages, we use a custom
// un-exported type for our context key.
type key int

const timerKey key = 0

// NewContext returns a new Context that carries the provided Timer.
func NewContext(ctx context.Context, t Timer) context.Context {
	return context.WithValue(ctx, timerKey, t)
}

// NewParent creates a parent timer and embeds it into the returned context.
func NewParent(ctx context.Context, name string) (context.Context, func()) {
	return fromContext(ctx).new(ctx, name)
}

// NewChild creates a child timer from the parent found within the supplied
// context.
func NewChild(ctx context.Context, name string) func() {
	return fromContext(ctx).newChild(ctx, name)
}

var defaultTimer = &noopTimer{}

func fromContext(ctx context.Context) Timer {
	t, ok := ctx.Value(timerKey).(Timer)
	if !ok {
		return defaultTimer
	}
	return t
}

// GetTimer returns a New Relic backed timer when an application can be
// instantiated, falling back to a no-op timer otherwise.
func GetTimer() Timer {
	target := conf.GetEnv("DEPLOYMENT_TARGET")
	if target == "" {
		target = "local"
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(fmt.Sprintf("PAW-%s", target)),
		newrelic.ConfigLicense(conf.GetEnv("NEW_RELIC_LICENSE_KEY")),
		newrelic.ConfigEnabled(true),
		func(cfg *newrelic.Config) {
			cfg.HighSecurity = true
		},
	)
	if err != nil {
		log.Warnf("Failed to instantiate New Relic application. Default to no-op timer. %s", err.Error())
		return &noopTimer{}
	}

	timeout := time.Duration(utils.GetEnvInt("NEW_RELIC_CONNECTION_TIMEOUT_SECONDS", 30)) * time.Second
	if err = app.WaitForConnection(timeout); err != nil {
		log.Warnf("Failed to establish connection to New Relic server in %s. Default to no-op timer.", timeout)
		return &noopTimer{}
	}

	log.Info("Using New Relic backed timer.")
	return &timer{app}
}

// validates that timer implements the interface
var _ Timer = &timer{}

type timer struct {
	nr *newrelic.Application
}

func (t *timer) new(parentCtx context.Context, name string) (ctx context.Context, close func()) {
	txn := t.nr.StartTransaction(name)
	ctx = newrelic.NewContext(parentCtx, txn)
	return ctx, func() { txn.End() }
}

func (t *timer) newChild(parentCtx context.Context, name string) (close func()) {
	txn := newrelic.FromContext(parentCtx)
	if txn == nil {
		log.Warn("No transaction found. Cannot create child.")
		return noop
	}
	segment := txn.StartSegment(name)
	return func() { segment.End() }
}

func (t *timer) Close() {
	const SHUTDOWN_TIMEOUT = 30 * time.Second
	t.nr.Shutdown(SHUTDOWN_TIMEOUT)
}

// validates that noopTimer implements the interface
var _ Timer = &noopTimer{}

type noopTimer struct{}

func (t *noopTimer) new(ctx context.Context, name string) (context.Context, func()) {
	return ctx, noop
}

func (t *noopTimer) newChild(ctx context.Context, name string) func() {
	return noop
}

func (t *noopTimer) Close() {}

func noop() {}
