package host

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
	"github.com/dentdelion-dev/dentdelion/domain/ports"
	"github.com/dentdelion-dev/dentdelion/wireformat"
)

// Call outcomes recorded in metrics and spans.
const (
	outcomeOK         = "ok"
	outcomeGuestError = "guest_error"
	outcomeFault      = "fault"
	outcomeTimeout    = "timeout"
	outcomeRejected   = "rejected"
)

// Instance is a loaded plugin and its lifecycle state machine.
//
// At most one lifecycle call runs at a time. The precondition check and the
// busy mark happen in one exclusive section, so of two racing calls the
// loser gets an InvalidStateTransitionError without running guest code. The
// lock is not held during the guest call; State never waits on one.
type Instance struct {
	id        uuid.UUID
	name      string
	component *Component
	config    entities.WasmPluginConfig
	caps      []entities.Capability
	hostState *HostState

	runtime  *Runtime
	registry ports.CapabilityRegistry
	logger   *zap.Logger
	metrics  *Metrics
	tracer   trace.Tracer

	mu    sync.RWMutex
	state entities.PluginState
	busy  bool
}

type instanceDeps struct {
	runtime  *Runtime
	registry ports.CapabilityRegistry
	logger   *zap.Logger
	metrics  *Metrics
}

func newInstance(name string, comp *Component, cfg entities.WasmPluginConfig, hs *HostState, deps instanceDeps) *Instance {
	inst := &Instance{
		id:        uuid.New(),
		name:      name,
		component: comp,
		config:    cfg.Clone(),
		caps:      cfg.ParsedCapabilities(),
		hostState: hs,
		runtime:   deps.runtime,
		registry:  deps.registry,
		logger:    deps.logger.With(zap.String("plugin", name)),
		metrics:   deps.metrics,
		tracer:    deps.runtime.tracer,
		state:     entities.StateRegistered,
	}
	inst.metrics.setState(name, inst.state)
	return inst
}

// Name is the plugin name.
func (i *Instance) Name() string {
	return i.name
}

// ID identifies this instance among reloads of the same plugin.
func (i *Instance) ID() uuid.UUID {
	return i.id
}

// State returns the current lifecycle state.
func (i *Instance) State() entities.PluginState {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// WasmConfig returns the manifest configuration.
func (i *Instance) WasmConfig() entities.WasmPluginConfig {
	return i.config.Clone()
}

// Component returns the shared compiled binary.
func (i *Instance) Component() *Component {
	return i.component
}

// Capabilities returns the declared capabilities in manifest order.
func (i *Instance) Capabilities() []entities.Capability {
	return slices.Clone(i.caps)
}

// HasCapability reports whether the plugin declared c.
func (i *Instance) HasCapability(c entities.Capability) bool {
	return slices.Contains(i.caps, c)
}

// HostState is the configuration handed to the guest. Changes apply to the
// next lifecycle call.
func (i *Instance) HostState() *HostState {
	return i.hostState
}

// OnLoad passes the serialized host state to the guest. Requires Registered.
func (i *Instance) OnLoad(ctx context.Context) error {
	return i.transition(ctx, entities.PhaseLoad)
}

// OnEnable requires Loaded or Disabled. On success the capabilities are
// published to the capability registry.
func (i *Instance) OnEnable(ctx context.Context) error {
	return i.transition(ctx, entities.PhaseEnable)
}

// OnDisable requires Enabled.
func (i *Instance) OnDisable(ctx context.Context) error {
	return i.transition(ctx, entities.PhaseDisable)
}

// OnUnload is allowed from any state and returns the instance to Registered.
func (i *Instance) OnUnload(ctx context.Context) error {
	return i.transition(ctx, entities.PhaseUnload)
}

func (i *Instance) begin(phase entities.Phase) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.busy || !phase.Allows(i.state) {
		return &domainerrors.InvalidStateTransitionError{Plugin: i.name, From: i.state, To: phase.Target(), Busy: i.busy}
	}
	i.busy = true
	return nil
}

func (i *Instance) transition(ctx context.Context, phase entities.Phase) error {
	if err := i.begin(phase); err != nil {
		i.metrics.observeCall(i.name, phase, outcomeRejected, 0)
		i.logger.Debug("lifecycle call rejected", zap.String("phase", phase.String()), zap.Error(err))
		return err
	}

	ctx, span := i.tracer.Start(ctx, lifecycleSpanName, trace.WithAttributes(
		attribute.String("plugin", i.name),
		attribute.String("phase", phase.String()),
	))
	defer span.End()

	start := time.Now()
	err := i.invoke(ctx, phase)
	if err == nil {
		err = i.publish(phase)
	}
	elapsed := time.Since(start)

	i.mu.Lock()
	from := i.state
	if err == nil {
		i.state = phase.Target()
	}
	i.busy = false
	to := i.state
	i.mu.Unlock()

	outcome := classify(err)
	i.metrics.observeCall(i.name, phase, outcome, elapsed)
	span.SetAttributes(attribute.String("outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		i.logger.Warn("lifecycle call failed",
			zap.String("phase", phase.String()),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return err
	}

	i.metrics.setState(i.name, to)
	i.logger.Info("lifecycle transition",
		zap.String("phase", phase.String()),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Duration("elapsed", elapsed))
	return nil
}

func (i *Instance) invoke(ctx context.Context, phase entities.Phase) error {
	snapshot := i.hostState.Snapshot()

	var payload []byte
	if phase.TakesConfig() {
		var err error
		payload, err = wireformat.EncodeConfig(snapshot)
		if err != nil {
			return &domainerrors.ConfigError{Err: err}
		}
	}

	exec := i.runtime.NewExecutionContext(i.name, snapshot, i.caps, i.config)
	guestErr, err := exec.Call(ctx, i.component, phase.Export(), payload)
	if err != nil {
		return err
	}
	if guestErr != nil {
		return &domainerrors.LifecycleError{
			Plugin:  i.name,
			Phase:   phase.String(),
			Code:    guestErr.Code,
			Message: guestErr.Message,
		}
	}
	return nil
}

// publish updates the capability registry and the service directory after a
// successful guest call. A failure here keeps the previous state.
func (i *Instance) publish(phase entities.Phase) error {
	switch phase {
	case entities.PhaseEnable:
		if i.registry != nil {
			if err := i.registry.Publish(i.name, i.caps); err != nil {
				return fmt.Errorf("publish capabilities of %s: %w", i.name, err)
			}
		}
	case entities.PhaseDisable, entities.PhaseUnload:
		if i.registry != nil {
			i.registry.Withdraw(i.name)
		}
		if phase == entities.PhaseUnload {
			if removed := i.runtime.Services().RemoveProvider(i.name); len(removed) > 0 {
				i.logger.Debug("withdrew services", zap.Strings("services", removed))
			}
		}
	}
	return nil
}

func classify(err error) string {
	if err == nil {
		return outcomeOK
	}
	var le *domainerrors.LifecycleError
	if errors.As(err, &le) {
		return outcomeGuestError
	}
	var we *domainerrors.WasmExecutionError
	if errors.As(err, &we) && we.Timeout {
		return outcomeTimeout
	}
	return outcomeFault
}
