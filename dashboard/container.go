// Package dashboard owns the device state shown to the user and the push
// session that keeps it current.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/elijahnyp/node1_dashboard/push"
	"github.com/elijahnyp/node1_dashboard/state"
	"github.com/rs/zerolog"
)

type StatusFetcher interface {
	Status(ctx context.Context) (state.Snapshot, error)
}

type Commander interface {
	SetLed1(ctx context.Context, l state.LedBinary) error
	SetLed2(ctx context.Context, l state.LedLevel) error
}

// API is everything the dashboard needs from the device's REST side.
type API interface {
	StatusFetcher
	Commander
}

// Opener starts a push session delivering to h.
type Opener func(h push.Handler) (io.Closer, error)

var (
	ErrAlreadyMounted  = errors.New("dashboard already mounted")
	ErrTornDown        = errors.New("dashboard torn down")
	ErrLevelOutOfRange = fmt.Errorf("led2 level must be between %d and %d", state.MinLevel, state.MaxLevel)
	ErrInvalidLed1     = errors.New("led1 state must be on or off")
)

// Dashboard is created once per view, mounted once and torn down once.
type Dashboard struct {
	store   *state.Store
	api     API
	open    Opener
	session io.Closer
	cancel  context.CancelFunc
	log     zerolog.Logger
	fetches sync.WaitGroup
	mu      sync.Mutex
	mounted bool
	torn    bool
}

func New(store *state.Store, api API, open Opener, logger zerolog.Logger) *Dashboard {
	return &Dashboard{
		store: store,
		api:   api,
		open:  open,
		log:   logger,
	}
}

func (d *Dashboard) Store() *state.Store {
	return d.store
}

func (d *Dashboard) Snapshot() state.Snapshot {
	return d.store.Snapshot()
}

// Mount starts the initial status fetch in the background and opens the
// push session. The fetch and the first push events race; whichever lands
// last wins.
func (d *Dashboard) Mount(ctx context.Context) error {
	d.mu.Lock()
	if d.torn {
		d.mu.Unlock()
		return ErrTornDown
	}
	if d.mounted {
		d.mu.Unlock()
		return ErrAlreadyMounted
	}
	d.mounted = true
	fctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.fetches.Add(1)
	d.mu.Unlock()

	go d.fetchInitial(fctx)

	session, err := d.open(d.HandleEvent)
	if err != nil {
		d.log.Error().Msgf("Error opening push channel: %v", err)
		return fmt.Errorf("opening push channel: %w", err)
	}

	d.mu.Lock()
	if d.torn {
		d.mu.Unlock()
		_ = session.Close() //nolint:errcheck // torn down while opening
		return ErrTornDown
	}
	d.session = session
	d.mu.Unlock()
	return nil
}

func (d *Dashboard) fetchInitial(ctx context.Context) {
	defer d.fetches.Done()
	snap, err := d.api.Status(ctx)
	if err != nil {
		if d.store.Closed() {
			d.log.Debug().Msgf("initial fetch abandoned: %v", err)
			return
		}
		d.log.Error().Msgf("Error fetching initial state: %v", err)
		return
	}
	if !d.store.Replace(snap) {
		d.log.Debug().Msg("torn down before initial state arrived, dropping it")
		return
	}
	d.log.Info().Msgf("initial state: motion=%s led1=%s led2=%d", snap.Motion, snap.Led1, snap.Led2)
}

// Wait blocks until the initial fetch has returned.
func (d *Dashboard) Wait() {
	d.fetches.Wait()
}

// Teardown closes the store before anything else so a fetch or command
// that completes late cannot write to it, then cancels the fetch and
// closes the push session. Calling it again does nothing.
func (d *Dashboard) Teardown() error {
	d.mu.Lock()
	if d.torn {
		d.mu.Unlock()
		return nil
	}
	d.torn = true
	session, cancel := d.session, d.cancel
	d.session = nil
	d.mu.Unlock()

	d.store.Close()
	if cancel != nil {
		cancel()
	}
	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		d.log.Warn().Msgf("Error closing push channel: %v", err)
		return fmt.Errorf("closing push channel: %w", err)
	}
	return nil
}

// HandleEvent folds one push event into the store. Connection lifecycle
// events are only logged.
func (d *Dashboard) HandleEvent(ev push.Event) {
	switch e := ev.(type) {
	case push.Connected:
		d.log.Info().Msgf("push channel connected: %s", e.SID)
	case push.Disconnected:
		d.log.Warn().Msgf("push channel disconnected: %s", e.Reason)
	case push.ConnectError:
		d.log.Error().Msgf("push channel connect error: %v", e.Err)
	case push.Reconnected:
		d.log.Info().Msgf("push channel reconnected after %d attempts", e.Attempt)
	case push.ReconnectFailed:
		d.log.Error().Msgf("push channel gave up after %d attempts", e.Attempts)
	case push.MotionUpdate:
		d.log.Debug().Msgf("motion: %s", e.Motion)
		d.store.SetMotion(e.Motion)
	case push.StateUpdate:
		d.log.Debug().Msgf("state: %+v", e.Snapshot)
		d.store.Replace(e.Snapshot)
	case push.LedUpdate:
		d.log.Debug().Msgf("led_update: led1=%v led2=%v", e.Led1 != nil, e.Led2 != nil)
		d.store.Update(func(snap *state.Snapshot) {
			if e.Led1 != nil {
				snap.Led1 = *e.Led1
			}
			if e.Led2 != nil {
				snap.Led2 = *e.Led2
			}
		})
	default:
		d.log.Debug().Msgf("unhandled push event %s", ev.EventName())
	}
}
