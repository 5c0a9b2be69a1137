package dashboard

import (
	"context"
	"fmt"

	"github.com/elijahnyp/node1_dashboard/state"
)

// The local store is only written after the device accepted a command.
// Failures are logged and returned; the store keeps its value. A "state"
// resync that lands while a command is in flight is kept over the command's
// result.

func (d *Dashboard) ToggleLed1(ctx context.Context) error {
	return d.SetLed1(ctx, d.store.Snapshot().Led1.Toggled())
}

func (d *Dashboard) SetLed1(ctx context.Context, l state.LedBinary) error {
	if !l.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLed1, l)
	}
	resyncs := d.store.Resyncs()
	if err := d.api.SetLed1(ctx, l); err != nil {
		d.log.Error().Msgf("Error setting led1 to %s: %v", l, err)
		return fmt.Errorf("setting led1: %w", err)
	}
	if !d.store.UpdateSince(resyncs, func(s *state.Snapshot) { s.Led1 = l }) {
		d.log.Debug().Msgf("led1 %s not applied, state resynced or torn down", l)
	}
	return nil
}

// SetLed2 rejects levels outside 0..5 without calling the device.
func (d *Dashboard) SetLed2(ctx context.Context, n int) error {
	level := state.LedLevel(n)
	if !level.Valid() {
		return fmt.Errorf("%w: %d", ErrLevelOutOfRange, n)
	}
	resyncs := d.store.Resyncs()
	if err := d.api.SetLed2(ctx, level); err != nil {
		d.log.Error().Msgf("Error setting led2 to %d: %v", level, err)
		return fmt.Errorf("setting led2: %w", err)
	}
	if !d.store.UpdateSince(resyncs, func(s *state.Snapshot) { s.Led2 = level }) {
		d.log.Debug().Msgf("led2 %d not applied, state resynced or torn down", level)
	}
	return nil
}
