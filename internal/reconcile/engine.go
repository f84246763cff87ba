// Package reconcile drives live network state towards a topology model.
//
// The engine walks a resolver plan one object at a time. Each object is
// re-read right before it is acted on, compared with its declaration, and
// then created, updated, recreated or left alone; teardown deletes in the
// reverse order. Only objects carrying the topoctl ownership marker are
// ever recreated or removed. The outcome of every object lands in a Report,
// and an object whose prerequisites did not succeed is skipped without
// touching the kernel.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"grimm.is/topoctl/internal/catalog"
	"grimm.is/topoctl/internal/inspect"
	"grimm.is/topoctl/internal/kernel"
	"grimm.is/topoctl/internal/logging"
	"grimm.is/topoctl/internal/resolver"
	"grimm.is/topoctl/internal/topology"
)

// Engine reconciles a model against the kernel.
type Engine struct {
	inspector *inspect.Inspector
	mut       kernel.Mutator
	opts      Options
	log       *logging.Logger
}

// New returns an engine reading through q and writing through mut.
func New(q kernel.Querier, mut kernel.Mutator, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		inspector: inspect.New(q),
		mut:       mut,
		opts:      opts,
		log:       opts.Logger.WithComponent("reconcile"),
	}
}

// Apply creates and converges every object of m in plan order. plan must
// come from resolver.Order.
//
// The report is returned even when the error is not nil. The error is a
// *ReconciliationError when any object failed or was skipped, and wraps
// ErrInterrupted when ctx was cancelled part way.
func (e *Engine) Apply(ctx context.Context, m *topology.Model, plan *resolver.Plan) (*Report, error) {
	return e.run(ctx, ActionApply, m, plan)
}

// Teardown removes every owned object of m in plan order. plan must come
// from resolver.TeardownOrder.
func (e *Engine) Teardown(ctx context.Context, m *topology.Model, plan *resolver.Plan) (*Report, error) {
	return e.run(ctx, ActionTeardown, m, plan)
}

func (e *Engine) run(ctx context.Context, action Action, m *topology.Model, plan *resolver.Plan) (*Report, error) {
	want := resolver.Forward
	if action == ActionTeardown {
		want = resolver.Reverse
	}
	if plan.Direction != want {
		return nil, fmt.Errorf("%s needs a %s plan, got %s", action, want, plan.Direction)
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Action:    action,
		StartedAt: e.opts.Clock.Now(),
		Results:   make([]Result, 0, plan.Len()),
	}
	log := e.log.WithFields(map[string]any{"run": report.RunID, "action": string(action)})
	e.opts.Metrics.SetDeclared(m.Len())

	initial, err := e.inspector.SnapshotModel(ctx, m)
	if err != nil {
		report.FinishedAt = e.opts.Clock.Now()
		return report, fmt.Errorf("initial snapshot: %w", err)
	}
	log.Info("starting", "steps", plan.Len(), "present", len(initial.Keys()))

	outcomes := make(map[catalog.Key]Outcome, plan.Len())
	for _, key := range plan.Steps {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		obj, ok := m.Object(key)
		if !ok {
			return report, fmt.Errorf("plan step %s is not in the model", key)
		}

		res := newResult(key)
		if blocker, blocked := blockedBy(plan.Requires[key], outcomes, action); blocked {
			res.Outcome = Skipped
			if action == ActionTeardown && outcomes[blocker] == Conflict {
				res.Outcome = Conflict
			}
			res.Reason = fmt.Sprintf("%s ended %s", blocker, outcomes[blocker])
		} else if action == ActionApply {
			e.applyOne(ctx, log, m, obj, &res)
		} else {
			e.teardownOne(ctx, log, obj, initial.Present(key), &res)
		}

		outcomes[key] = res.Outcome
		report.Results = append(report.Results, res)
		e.record(log, action, res)
	}

	report.FinishedAt = e.opts.Clock.Now()
	e.opts.Metrics.ObserveRun(string(action), report.StartedAt, report.FinishedAt, report.Success() && !report.Interrupted)
	log.Info("finished", "summary", report.Summary(), "duration", report.Duration())

	var errs []error
	if report.Interrupted {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err()))
	}
	if !report.Success() {
		errs = append(errs, &ReconciliationError{Report: report})
	}
	return report, errors.Join(errs...)
}

// blockedBy returns the first prerequisite whose outcome blocks dependents.
// On teardown a dependent left in place as a Conflict keeps what it relies
// on in place too; such a blocker is only returned when no prerequisite
// failed or was skipped.
func blockedBy(requires []catalog.Key, outcomes map[catalog.Key]Outcome, action Action) (catalog.Key, bool) {
	var (
		kept  catalog.Key
		found bool
	)
	for _, req := range requires {
		o, ok := outcomes[req]
		if !ok || !o.blocks() {
			continue
		}
		if o == Conflict && action == ActionTeardown {
			if !found {
				kept, found = req, true
			}
			continue
		}
		return req, true
	}
	return kept, found
}

func (e *Engine) retrier(log *logging.Logger, action Action, key catalog.Key) *retrier {
	return &retrier{
		cfg:   e.opts.Retry,
		clock: e.opts.Clock,
		onRetry: func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying", "object", key.String(), "attempt", attempt, "delay", delay, "error", err)
			e.opts.Metrics.ObserveRetry(string(action), key.Kind.String())
		},
	}
}

// applyOne runs the check, diff and mutate unit for one object. Kernel
// calls ignore cancellation so an object is never left half done; only the
// backoff wait honours ctx.
func (e *Engine) applyOne(ctx context.Context, log *logging.Logger, m *topology.Model, obj topology.Object, res *Result) {
	opCtx := context.WithoutCancel(ctx)

	attempts, err := e.retrier(log, ActionApply, obj.Key).do(ctx, func() error {
		res.Outcome, res.Operations, res.Drift, res.Reason = "", nil, nil, ""

		obs, err := e.inspector.Refresh(opCtx, obj.Key)
		if err != nil {
			return err
		}
		d := Compare(obj.Attrs, obs)
		res.Drift = d.Drift()
		log.Debug("compared", "object", obj.Key.String(), "diff", d.Kind.String(), "drift", res.Drift)

		switch d.Kind {
		case Missing:
			if err := e.create(opCtx, obj.Key, obj.Attrs, res); err != nil {
				return err
			}
			res.Outcome = Created
		case Matches:
			res.Outcome = Unchanged
			if d.Adopted {
				res.Reason = "adopted"
			}
		case ForeignConflict:
			res.Outcome = Conflict
			res.Reason = fmt.Sprintf("name held by a %s not owned by topoctl", obs.Type)
		case Diverged:
			return e.converge(opCtx, m, obj, d, res)
		}
		return nil
	})

	res.Attempts = attempts
	if err != nil {
		res.Outcome = Failed
		res.Reason = err.Error()
	}
}

func (e *Engine) converge(ctx context.Context, m *topology.Model, obj topology.Object, d Diff, res *Result) error {
	if len(d.Structural) == 0 {
		res.Operations = append(res.Operations, "update")
		if err := e.mut.Update(ctx, obj.Key, obj.Attrs); err != nil {
			return err
		}
		res.Outcome = Updated
		return nil
	}

	structural := strings.Join(d.Structural, ", ")
	if d.Adopted {
		res.Outcome = Conflict
		res.Reason = fmt.Sprintf("%s differs on an object not owned by topoctl", structural)
		return nil
	}
	if e.opts.Policy != PolicyRecreate {
		return fmt.Errorf("%w: %s", ErrStructuralDrift, structural)
	}

	res.Operations = append(res.Operations, "delete")
	if err := e.mut.Delete(ctx, obj.Key); err != nil && !errors.Is(err, kernel.ErrNotFound) {
		return err
	}
	// Deleting either end of a veth pair deletes both, and the secondary end
	// can only be created by moving the primary's peer.
	if v, ok := obj.Attrs.(catalog.VethAttrs); ok && !v.Primary {
		peer, ok := m.Object(catalog.NewKey(catalog.KindVeth, v.PeerScope, v.Peer))
		if !ok {
			return fmt.Errorf("veth %s has no declared peer", obj.Key)
		}
		obs, err := e.inspector.Refresh(ctx, peer.Key)
		if err != nil {
			return err
		}
		if obs == nil {
			if err := e.create(ctx, peer.Key, peer.Attrs, res); err != nil {
				return err
			}
		}
	}
	if err := e.create(ctx, obj.Key, obj.Attrs, res); err != nil {
		return err
	}
	res.Outcome = Updated
	return nil
}

func (e *Engine) create(ctx context.Context, key catalog.Key, attrs catalog.Attributes, res *Result) error {
	op := "create"
	if key != res.Key {
		op += " " + key.String()
	}
	res.Operations = append(res.Operations, op)
	return e.mut.Create(ctx, key, attrs)
}

func (e *Engine) teardownOne(ctx context.Context, log *logging.Logger, obj topology.Object, seen bool, res *Result) {
	opCtx := context.WithoutCancel(ctx)

	attempts, err := e.retrier(log, ActionTeardown, obj.Key).do(ctx, func() error {
		res.Outcome, res.Operations, res.Reason = "", nil, ""

		obs, err := e.inspector.Refresh(opCtx, obj.Key)
		if err != nil {
			return err
		}
		switch {
		case obs == nil && seen:
			res.Outcome = Removed
			res.Reason = "removed with a dependent object"
		case obs == nil:
			res.Outcome = Unchanged
		case !obs.Owned:
			res.Outcome = Conflict
			res.Reason = ErrNotOwned.Error()
		default:
			res.Operations = append(res.Operations, "delete")
			if err := e.mut.Delete(opCtx, obj.Key); err != nil && !errors.Is(err, kernel.ErrNotFound) {
				return err
			}
			res.Outcome = Removed
		}
		return nil
	})

	res.Attempts = attempts
	if err != nil {
		res.Outcome = Failed
		res.Reason = err.Error()
	}
}

func (e *Engine) record(log *logging.Logger, action Action, res Result) {
	e.opts.Metrics.ObserveObject(string(action), res.Kind, string(res.Outcome))

	args := []any{"object", res.Object, "outcome", string(res.Outcome)}
	if len(res.Operations) > 0 {
		args = append(args, "ops", strings.Join(res.Operations, ","))
	}
	if res.Attempts > 1 {
		args = append(args, "attempts", res.Attempts)
	}
	if res.Reason != "" {
		args = append(args, "reason", res.Reason)
	}

	switch res.Outcome {
	case Failed:
		log.Error("object failed", args...)
	case Skipped, Conflict:
		log.Warn("object not reconciled", args...)
	default:
		log.Info("object reconciled", args...)
	}

	switch res.Outcome {
	case Created, Updated, Removed:
		if len(res.Operations) > 0 {
			log.Audit(string(action), res.Object, map[string]any{"ops": strings.Join(res.Operations, ",")})
		}
	}
}
