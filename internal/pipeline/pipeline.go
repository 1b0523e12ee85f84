// Package pipeline is the Check Outcome Pipeline (spec.md §4.7): the
// per-run sequence that turns one plugin execution into a classified
// outcome, a hysteresis-gated state transition, a persisted alert
// interval change, and a notification fan-out. Grounded on the shape of
// the teacher's handleSuccess/handleFailure/rescheduleUnlocked trio in
// internal/poller/scheduler.go (threshold-counter update, then a
// DB-transition write, then a non-blocking event emit) but replacing its
// binary up/down liveness model with the three-state UP/DOWN/UNKNOWN
// hysteresis table this spec requires.
package pipeline

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/irisett-go/irisett/internal/activemonitor"
	"github.com/irisett-go/irisett/internal/definition"
	"github.com/irisett-go/irisett/internal/errs"
	"github.com/irisett-go/irisett/internal/eventbus"
	"github.com/irisett-go/irisett/internal/pluginrunner"
	"github.com/irisett-go/irisett/internal/store"
	"github.com/irisett-go/irisett/internal/tmpl"
)

// Notifier is the narrow slice of the Notification Fan-out this pipeline
// needs: fire-and-forget dispatch on a state transition.
type Notifier interface {
	NotifyStateChange(ctx context.Context, instanceID int64, from, to store.MonitorState, message, monitorDescription string, stateElapsed time.Duration)
}

// ScheduleFunc re-arms an instance's next tick. Supplied by the Scheduler
// at wiring time so this package never has to import it.
type ScheduleFunc func(instanceID int64, delay time.Duration)

const (
	DefaultInterval  = 180 * time.Second
	DownThreshold    = 3
	UnknownThreshold = 5
	PluginTimeout    = 30 * time.Second
	downHysteresisWait    = 30 * time.Second
	unknownHysteresisWait = 120 * time.Second
	upJitter              = 5 * time.Second
)

// Pipeline wires every component a single check run touches.
type Pipeline struct {
	gw          store.Gateway
	instances   *activemonitor.Registry
	definitions *definition.Registry
	tmplCache   *tmpl.Cache
	runner      *pluginrunner.Runner
	bus         *eventbus.EventBus
	notifier    Notifier
	schedule    ScheduleFunc
	logger      *slog.Logger

	downThreshold, unknownThreshold int
	defaultInterval, pluginTimeout  time.Duration
}

type Config struct {
	DownThreshold    int
	UnknownThreshold int
	DefaultInterval  time.Duration
	PluginTimeout    time.Duration
}

func New(gw store.Gateway, instances *activemonitor.Registry, definitions *definition.Registry,
	tmplCache *tmpl.Cache, runner *pluginrunner.Runner, bus *eventbus.EventBus, notifier Notifier,
	schedule ScheduleFunc, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DownThreshold <= 0 {
		cfg.DownThreshold = DownThreshold
	}
	if cfg.UnknownThreshold <= 0 {
		cfg.UnknownThreshold = UnknownThreshold
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = DefaultInterval
	}
	if cfg.PluginTimeout <= 0 {
		cfg.PluginTimeout = PluginTimeout
	}
	return &Pipeline{
		gw: gw, instances: instances, definitions: definitions, tmplCache: tmplCache,
		runner: runner, bus: bus, notifier: notifier, schedule: schedule,
		logger:           logger.With("component", "pipeline"),
		downThreshold:    cfg.DownThreshold,
		unknownThreshold: cfg.UnknownThreshold,
		defaultInterval:  cfg.DefaultInterval,
		pluginTimeout:    cfg.PluginTimeout,
	}
}

// Run executes the full per-run sequence for instanceID. It is the
// scheduler.RunFunc this package hands to the Scheduler at wiring time.
func (p *Pipeline) Run(ctx context.Context, instanceID int64) {
	inst := p.instances.Get(instanceID)
	if inst == nil {
		return
	}

	if err := p.instances.ConsumePendingReset(ctx, instanceID); err != nil {
		p.logger.Error("failed to apply deferred monitor reset", "instance_id", instanceID, "error", err)
	}

	if !inst.ChecksEnabled() {
		p.schedule(instanceID, p.defaultInterval)
		return
	}

	def, ok := p.definitions.Get(inst.Row.DefinitionID)
	if !ok {
		p.logger.Error("monitor instance references unknown definition", "instance_id", instanceID)
		p.schedule(instanceID, p.defaultInterval)
		return
	}

	expansion, err := p.expand(instanceID, def, inst.Row.Arguments)
	if err != nil {
		p.logger.Error("failed to expand templates", "instance_id", instanceID, "error", err)
		p.schedule(instanceID, p.defaultInterval)
		return
	}

	p.bus.Publish(eventbus.TopicRunActiveMonitor, instanceID, nil)

	argv := append([]string{def.ExecutablePath}, expansion.Argv...)
	result, runErr := p.runner.Run(ctx, argv, p.pluginTimeout)
	if runErr != nil && errs.Is(runErr, errs.KindPluginNotFound) {
		result = pluginrunner.Result{Outcome: pluginrunner.OutcomeUnknown, Message: "check executable not found"}
	}

	rawState := outcomeToState(result.Outcome)

	p.bus.Publish(eventbus.TopicCheckResult, instanceID, eventbus.CheckResultPayload{
		InstanceID: instanceID, Outcome: string(rawState), Message: result.Message,
	})

	p.applyOutcome(ctx, inst, rawState, result.Message)
}

func (p *Pipeline) expand(instanceID int64, def *store.MonitorDefinition, args map[string]string) (tmpl.Expansion, error) {
	if e, ok := p.tmplCache.Get(instanceID); ok {
		return e, nil
	}
	effective := make(map[string]string, len(def.Params)+len(args))
	for _, param := range def.Params {
		if param.DefaultValue != "" {
			effective[param.Name] = param.DefaultValue
		}
	}
	for k, v := range args {
		effective[k] = v
	}
	e, err := tmpl.Render(def.ArgvTemplate, def.DescriptionTmpl, effective)
	if err != nil {
		return tmpl.Expansion{}, err
	}
	p.tmplCache.Put(instanceID, e)
	return e, nil
}

func outcomeToState(o pluginrunner.Outcome) store.MonitorState {
	switch o {
	case pluginrunner.OutcomeUp:
		return store.StateUp
	case pluginrunner.OutcomeDown:
		return store.StateDown
	default:
		return store.StateUnknown
	}
}

// applyOutcome updates the consecutive-counter, runs the hysteresis state
// machine from spec.md §4.7, and reschedules the instance.
func (p *Pipeline) applyOutcome(ctx context.Context, inst *activemonitor.Instance, rawState store.MonitorState, message string) {
	inst.Lock()
	current := inst.Row.State
	if rawState == inst.Row.LastOutcome {
		inst.Row.ConsecutiveSame++
	} else {
		inst.Row.ConsecutiveSame = 0
	}
	counter := inst.Row.ConsecutiveSame
	inst.Row.LastOutcome = rawState
	inst.Row.LastMessage = message
	inst.Row.LastCheckAt = time.Now()
	inst.Unlock()

	next, delay, transition := p.decide(current, rawState, counter)

	if transition {
		if err := p.commitTransition(ctx, inst, current, next, message); err != nil {
			p.logger.Error("failed to persist state transition", "instance_id", inst.Row.ID, "error", err)
		}
	} else {
		if _, err := p.gw.Execute(ctx, `UPDATE monitor_instances SET last_message=?, last_outcome=?, consecutive_same=?, last_check_at=? WHERE id=?`,
			message, string(rawState), counter, inst.Row.LastCheckAt, inst.Row.ID); err != nil {
			p.logger.Error("failed to persist check result", "instance_id", inst.Row.ID, "error", err)
		}
	}

	if deleted := inst.IsDeleted(); deleted {
		if err := p.instances.Purge(ctx, inst.Row.ID); err != nil {
			p.logger.Error("failed to purge deleted instance", "instance_id", inst.Row.ID, "error", err)
		}
		return
	}

	p.schedule(inst.Row.ID, delay)
}

// decide implements the state machine table from spec.md §4.7, returning
// the next stable state, the delay until the next tick, and whether a
// transition (and its DB/notification effects) should be committed.
func (p *Pipeline) decide(current, raw store.MonitorState, counter int) (next store.MonitorState, delay time.Duration, transition bool) {
	jitter := time.Duration(rand.Intn(2*int(upJitter)+1)) - upJitter

	switch current {
	case store.StateUp:
		switch raw {
		case store.StateUp:
			return store.StateUp, p.defaultInterval + jitter, false
		case store.StateDown:
			if counter >= p.downThreshold {
				return store.StateDown, p.defaultInterval, true
			}
			return store.StateUp, downHysteresisWait, false
		default: // UNKNOWN
			if counter >= p.unknownThreshold {
				return store.StateUnknown, p.defaultInterval, true
			}
			return store.StateUp, unknownHysteresisWait, false
		}
	case store.StateDown:
		switch raw {
		case store.StateUp:
			return store.StateUp, p.defaultInterval, true
		case store.StateDown:
			return store.StateDown, p.defaultInterval, false
		default: // UNKNOWN
			if counter >= p.unknownThreshold {
				return store.StateUnknown, p.defaultInterval, true
			}
			return store.StateDown, unknownHysteresisWait, false
		}
	default: // UNKNOWN
		switch raw {
		case store.StateUp:
			return store.StateUp, p.defaultInterval, true
		case store.StateDown:
			return store.StateDown, p.defaultInterval, true // no hysteresis from UNKNOWN
		default:
			return store.StateUnknown, p.defaultInterval, false
		}
	}
}

// commitTransition performs the atomic DB effects of a state change
// (spec.md §4.7's "Transition effects") and fans out notifications for
// DOWN and DOWN→UP transitions.
func (p *Pipeline) commitTransition(ctx context.Context, inst *activemonitor.Instance, from, to store.MonitorState, message string) error {
	now := time.Now()
	previousStateEnteredAt := inst.Row.StateEnteredAt

	err := p.gw.Transact(ctx, func(ctx context.Context, c store.Cursor) error {
		switch {
		case to == store.StateDown:
			alertID, err := c.Execute(ctx, `INSERT INTO alert_intervals (monitor_id, start_at, message) VALUES (?, ?, ?)`,
				inst.Row.ID, now, message)
			if err != nil {
				return err
			}
			_, err = c.Execute(ctx, `UPDATE monitor_instances SET state=?, state_entered_at=?, last_message=?, open_alert_id=? WHERE id=?`,
				string(to), now, message, alertID, inst.Row.ID)
			if err == nil {
				inst.SetOpenAlert(&alertID)
			}
			return err

		case from == store.StateDown && to == store.StateUp:
			if inst.Row.OpenAlertID != nil {
				if _, err := c.Execute(ctx, `UPDATE alert_intervals SET end_at=? WHERE id=?`, now, *inst.Row.OpenAlertID); err != nil {
					return err
				}
			}
			_, err := c.Execute(ctx, `UPDATE monitor_instances SET state=?, state_entered_at=?, last_message=?, open_alert_id=NULL WHERE id=?`,
				string(to), now, message, inst.Row.ID)
			if err == nil {
				inst.SetOpenAlert(nil)
			}
			return err

		default:
			_, err := c.Execute(ctx, `UPDATE monitor_instances SET state=?, state_entered_at=?, last_message=? WHERE id=?`,
				string(to), now, message, inst.Row.ID)
			return err
		}
	})
	if err != nil {
		return err
	}

	inst.SetState(to, now)

	p.bus.Publish(eventbus.TopicStateChange, inst.Row.ID, eventbus.StateChangePayload{
		InstanceID: inst.Row.ID, From: string(from), To: string(to), Message: message,
	})

	if inst.Row.AlertsEnabled && (to == store.StateDown || (from == store.StateDown && to == store.StateUp)) {
		elapsed := now.Sub(previousStateEnteredAt)
		description := ""
		if def, ok := p.definitions.Get(inst.Row.DefinitionID); ok {
			description = def.Description
		}
		go p.notifier.NotifyStateChange(context.Background(), inst.Row.ID, from, to, message, description, elapsed)
	}
	return nil
}
