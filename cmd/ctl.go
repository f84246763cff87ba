// Package cmd implements the topoctl subcommands.
package cmd

import (
	"fmt"
	"io"
	"os"

	"grimm.is/topoctl/internal/brand"
	"grimm.is/topoctl/internal/config"
	"grimm.is/topoctl/internal/i18n"
	"grimm.is/topoctl/internal/kernel"
	"grimm.is/topoctl/internal/logging"
	"grimm.is/topoctl/internal/metrics"
	"grimm.is/topoctl/internal/reconcile"
	"grimm.is/topoctl/internal/resolver"
	"grimm.is/topoctl/internal/topology"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

// Report output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Options are shared by every subcommand.
type Options struct {
	// Source is a topology file path or http(s) URL. Empty uses the
	// default topology path.
	Source string
	Load   config.LoadOptions

	// Policy overrides the diverged_policy of the settings block.
	Policy string
	Format string

	// Simulate runs against an empty in-memory kernel.
	Simulate   bool
	// MetricsDir receives a node_exporter textfile after each run.
	MetricsDir string

	Logger *logging.Logger
	Out    io.Writer
	// Kernel replaces the system driver.
	Kernel kernel.Kernel
}

func (o Options) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

func (o Options) logger() *logging.Logger {
	if o.Logger == nil {
		return logging.Default()
	}
	return o.Logger
}

func (o Options) source() string {
	if o.Source == "" {
		return brand.DefaultTopologyPath()
	}
	return o.Source
}

func (o Options) kernel() kernel.Kernel {
	switch {
	case o.Kernel != nil:
		return o.Kernel
	case o.Simulate:
		return kernel.NewMemory()
	}
	return kernel.NewSystemDriver(
		kernel.WithLogger(o.logger().WithComponent("kernel")),
		kernel.WithOwner(brand.OwnerMarker),
	)
}

// loaded is a validated topology ready to reconcile.
type loaded struct {
	result *config.LoadResult
	model  *topology.Model
}

// load reads the source and builds the model. Nothing touches the kernel
// until it succeeds.
func load(opts Options) (*loaded, error) {
	log := opts.logger()

	result, err := config.LoadFile(opts.source(), opts.Load)
	if err != nil {
		return nil, fmt.Errorf("failed to load topology: %w", err)
	}
	for _, w := range result.Warnings {
		log.Warn(w, "source", result.Source)
	}

	model, err := topology.Build(result.Declarations)
	if err != nil {
		return nil, fmt.Errorf("topology invalid: %w", err)
	}
	log.Debug("topology loaded", "source", result.Source, "objects", model.Len())
	return &loaded{result: result, model: model}, nil
}

// engineOptions merges the settings block with the command line.
func (l *loaded) engineOptions(opts Options, reg *metrics.Registry) (reconcile.Options, error) {
	settings := l.result.Settings
	policy := settings.Policy
	if opts.Policy != "" {
		p, err := reconcile.ParsePolicy(opts.Policy)
		if err != nil {
			return reconcile.Options{}, err
		}
		policy = p
	}
	return reconcile.Options{
		Policy:  policy,
		Retry:   settings.Retry,
		Logger:  opts.logger(),
		Metrics: reg,
	}, nil
}

func (l *loaded) plan(dir resolver.Direction) (*resolver.Plan, error) {
	if dir == resolver.Reverse {
		return resolver.TeardownOrder(l.model)
	}
	return resolver.Order(l.model)
}

// exportMetrics writes the textfile when a directory is configured. A
// failed export is logged, never fatal.
func exportMetrics(opts Options, reg *metrics.Registry) {
	if opts.MetricsDir == "" {
		return
	}
	path, err := reg.WriteTextfile(opts.MetricsDir)
	if err != nil {
		opts.logger().Warn("metrics export failed", "dir", opts.MetricsDir, "error", err)
		return
	}
	opts.logger().Debug("metrics written", "path", path)
}
