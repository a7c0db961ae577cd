// Package idp bridges a third-party sign-in provider, which becomes available
// on its own schedule, into the session controller's credential exchange.
package idp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/metrics"
)

// State of a Bridge.
type State int

const (
	StateIdle State = iota
	StateWaitingForScript
	StateInitialized
	StateRendered
	StateFailed
	StateDisabled
	StateUnmounted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForScript:
		return "waiting_for_script"
	case StateInitialized:
		return "initialized"
	case StateRendered:
		return "rendered"
	case StateFailed:
		return "failed"
	case StateDisabled:
		return "disabled"
	case StateUnmounted:
		return "unmounted"
	default:
		return "unknown"
	}
}

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultTimeout      = 10 * time.Second
)

// ErrScriptTimeout is reported when the provider never became available.
var ErrScriptTimeout = errors.New("idp: sign-in provider did not load in time")

// Provider is a loaded sign-in provider.
type Provider interface {
	// Initialize registers the callback the provider calls with a credential.
	Initialize(clientID string, callback func(credential string)) error

	// Render presents the sign-in affordance. It must not block until the
	// user signs in; the credential arrives through the callback. ctx is
	// cancelled when the bridge is unmounted.
	Render(ctx context.Context) error
}

// Loader reports whether the provider has finished loading.
type Loader interface {
	Lookup() (Provider, bool)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func() (Provider, bool)

func (f LoaderFunc) Lookup() (Provider, bool) { return f() }

type Config struct {
	// ClientID identifies this application to the provider. Empty disables
	// the bridge.
	ClientID string

	// Disabled greys the affordance out, e.g. while a submission is in flight.
	Disabled bool

	PollInterval time.Duration
	Timeout      time.Duration

	Loader Loader

	// OnCredential receives credentials verbatim. Unmount waits for it, so
	// it must not call Unmount synchronously.
	OnCredential func(credential string)

	// OnError is called at most once per mount. It runs on the polling
	// goroutine, so it must not call Unmount synchronously.
	OnError func(err error)

	Metrics metrics.Recorder
	Logger  *slog.Logger
}

// Bridge waits for the provider, initializes it and renders it. It is
// single-use: Mount once, Unmount once.
type Bridge struct {
	cfg Config

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	errOnce  sync.Once
	forwards sync.WaitGroup
}

func NewBridge(cfg Config) *Bridge {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.OnCredential == nil {
		cfg.OnCredential = func(string) {}
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Bridge{cfg: cfg, state: StateIdle}
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Mount starts the bridge. If the provider is already loaded it is
// initialized and rendered before Mount returns; otherwise Mount returns
// straight away and the bridge polls in the background until the provider
// appears or the timeout passes.
func (b *Bridge) Mount(ctx context.Context) {
	b.mu.Lock()
	if b.state != StateIdle {
		b.mu.Unlock()
		return
	}

	if b.cfg.Disabled || b.cfg.ClientID == "" || b.cfg.Loader == nil {
		b.state = StateDisabled
		b.mu.Unlock()
		b.cfg.Logger.Info("identity provider unavailable", "disabled", b.cfg.Disabled, "configured", b.cfg.ClientID != "")
		b.cfg.Metrics.RecordBridgeOutcome(StateDisabled.String())
		return
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	b.mu.Unlock()

	if p, ok := b.cfg.Loader.Lookup(); ok {
		defer close(b.done)
		b.ready(ctx, p)
		return
	}

	b.setState(StateWaitingForScript)
	go b.wait(ctx)
}

// wait polls for the provider until it loads, the timeout passes or ctx is
// cancelled.
func (b *Bridge) wait(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	timeout := time.NewTimer(b.cfg.Timeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout.C:
			b.fail(fmt.Errorf("%w after %s", ErrScriptTimeout, b.cfg.Timeout))
			return
		case <-ticker.C:
			if p, ok := b.cfg.Loader.Lookup(); ok {
				b.ready(ctx, p)
				return
			}
		}
	}
}

func (b *Bridge) ready(ctx context.Context, p Provider) {
	if err := p.Initialize(b.cfg.ClientID, b.forward); err != nil {
		b.fail(fmt.Errorf("idp: initialize: %w", err))
		return
	}
	if !b.setState(StateInitialized) {
		return
	}

	if err := p.Render(ctx); err != nil {
		b.fail(fmt.Errorf("idp: render: %w", err))
		return
	}
	if !b.setState(StateRendered) {
		return
	}

	b.cfg.Logger.Info("identity provider rendered")
	b.cfg.Metrics.RecordBridgeOutcome(StateRendered.String())
}

// setState moves to s unless the bridge was unmounted meanwhile.
func (b *Bridge) setState(s State) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateUnmounted {
		return false
	}
	b.state = s
	return true
}

func (b *Bridge) fail(err error) {
	if !b.setState(StateFailed) {
		return
	}

	b.cfg.Logger.Warn("identity provider failed", "error", err)
	b.cfg.Metrics.RecordBridgeOutcome(StateFailed.String())
	b.errOnce.Do(func() { b.cfg.OnError(err) })
}

// forward hands a credential to OnCredential unless the bridge is gone.
func (b *Bridge) forward(credential string) {
	b.mu.Lock()
	if b.state == StateUnmounted {
		b.mu.Unlock()
		b.cfg.Logger.Debug("dropping credential delivered after unmount")
		return
	}
	b.forwards.Add(1)
	b.mu.Unlock()

	defer b.forwards.Done()
	b.cfg.OnCredential(credential)
}

// Unmount stops any polling and cancels the rendered affordance. It waits for
// credential callbacks already running; once it returns no callback runs.
func (b *Bridge) Unmount() {
	b.mu.Lock()
	b.state = StateUnmounted
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	b.forwards.Wait()
}
