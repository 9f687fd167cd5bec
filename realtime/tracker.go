package realtime

import (
	"context"
	"sync"

	"github.com/bartossh/Rampart/entity"
	"github.com/bartossh/Rampart/reactive"
)

const pendingGauge = "rampart_apply_pending"

// HealthChecker reads the cluster health.
type HealthChecker interface {
	Health(ctx context.Context) (entity.HealthStatus, error)
}

// GaugeSetter records the pending flag.
type GaugeSetter interface {
	CreateUpdateObservableGauge(name, description string)
	SetGauge(name string, f float64) bool
}

// ApplyTracker tracks whether configuration changes wait to be applied.
type ApplyTracker struct {
	mux     sync.RWMutex
	pending bool
	health  HealthChecker
	changes *reactive.Observable[bool]
	gauge   GaugeSetter
}

// NewApplyTracker creates ApplyTracker. gauge may be nil.
func NewApplyTracker(health HealthChecker, gauge GaugeSetter) *ApplyTracker {
	if gauge != nil {
		gauge.CreateUpdateObservableGauge(pendingGauge, "Set to 1 when changes wait to be applied.")
	}
	return &ApplyTracker{health: health, changes: reactive.New[bool](8), gauge: gauge}
}

// Init reads the cluster health, sets the pending flag and reports whether an apply is running.
func (t *ApplyTracker) Init(ctx context.Context) (applyActive bool, err error) {
	h, err := t.health.Health(ctx)
	if err != nil {
		return false, err
	}
	t.set(h.Pending())
	return h.ApplyActive, nil
}

// Pending reports whether changes wait to be applied.
func (t *ApplyTracker) Pending() bool {
	t.mux.RLock()
	defer t.mux.RUnlock()
	return t.pending
}

// Changes subscribes to changes of the pending flag.
func (t *ApplyTracker) Changes() *reactive.Subscription[bool] {
	return t.changes.Subscribe()
}

// Handle updates the flag from a realtime event.
func (t *ApplyTracker) Handle(ev Event) {
	switch ev.Name {
	case EventTracking:
		t.set(true)
	case EventApplied:
		t.set(false)
	}
}

// Watch handles events from sub until ctx is done or the subscription is cancelled.
func (t *ApplyTracker) Watch(ctx context.Context, sub *reactive.Subscription[Event]) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Channel():
			if !ok {
				return
			}
			t.Handle(ev)
		}
	}
}

func (t *ApplyTracker) set(pending bool) {
	t.mux.Lock()
	changed := t.pending != pending
	t.pending = pending
	t.mux.Unlock()

	if t.gauge != nil {
		v := 0.0
		if pending {
			v = 1
		}
		t.gauge.SetGauge(pendingGauge, v)
	}
	if changed {
		t.changes.Publish(pending)
	}
}
