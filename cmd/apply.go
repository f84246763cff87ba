package cmd

import (
	"context"
	"errors"

	"grimm.is/topoctl/internal/metrics"
	"grimm.is/topoctl/internal/reconcile"
	"grimm.is/topoctl/internal/resolver"
)

// RunApply brings the system to the declared topology and prints the
// report. The report is returned whenever reconciliation started, also
// alongside a *reconcile.ReconciliationError.
func RunApply(ctx context.Context, opts Options) (*reconcile.Report, error) {
	return run(ctx, opts, resolver.Forward)
}

// RunTeardown removes the declared objects topoctl owns, dependents first.
func RunTeardown(ctx context.Context, opts Options) (*reconcile.Report, error) {
	return run(ctx, opts, resolver.Reverse)
}

func run(ctx context.Context, opts Options, dir resolver.Direction) (*reconcile.Report, error) {
	if err := checkFormat(opts.Format); err != nil {
		return nil, err
	}
	l, err := load(opts)
	if err != nil {
		return nil, err
	}
	plan, err := l.plan(dir)
	if err != nil {
		return nil, err
	}

	reg := metrics.New()
	eopts, err := l.engineOptions(opts, reg)
	if err != nil {
		return nil, err
	}

	k := opts.kernel()
	engine := reconcile.New(k, k, eopts)

	var report *reconcile.Report
	if dir == resolver.Reverse {
		report, err = engine.Teardown(ctx, l.model, plan)
	} else {
		report, err = engine.Apply(ctx, l.model, plan)
	}
	exportMetrics(opts, reg)

	if report == nil {
		return nil, err
	}
	if rerr := render(opts.out(), opts.Format, report); rerr != nil {
		return report, errors.Join(err, rerr)
	}
	return report, err
}
