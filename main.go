package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"grimm.is/topoctl/cmd"
	"grimm.is/topoctl/internal/brand"
	"grimm.is/topoctl/internal/config"
	"grimm.is/topoctl/internal/i18n"
	"grimm.is/topoctl/internal/logging"
)

var printer = i18n.NewCLIPrinter()

// varFlags collects repeated -var name=value flags.
type varFlags map[string]string

func (v varFlags) String() string {
	pairs := make([]string, 0, len(v))
	for name, value := range v {
		pairs = append(pairs, name+"="+value)
	}
	return strings.Join(pairs, ",")
}

func (v varFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	v[name] = value
	return nil
}

// commonFlags registers the flags shared by every subcommand.
type commonFlags struct {
	logLevel   *string
	logJSON    *bool
	policy     *string
	format     *string
	simulate   *bool
	metricsDir *string
	vars       varFlags
}

func newCommonFlags(fs *flag.FlagSet, reconciles bool) *commonFlags {
	c := &commonFlags{vars: varFlags{}}
	c.logLevel = fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	c.logJSON = fs.Bool("log-json", false, "Log in JSON format")
	c.policy = fs.String("policy", "", "Diverged policy override (reject, recreate)")
	fs.Var(c.vars, "var", "Set a topology variable (name=value, repeatable)")
	c.format = fs.String("format", cmd.FormatTable, "Report format (table, json, yaml)")
	c.simulate = fs.Bool("simulate", false, "Run against an empty in-memory kernel")
	fs.BoolVar(c.simulate, "n", false, "Simulate (short)")
	c.metricsDir = new(string)
	if reconciles {
		c.metricsDir = fs.String("metrics-dir", "", "Write a node_exporter textfile to this directory")
	}
	return c
}

func (c *commonFlags) options(fs *flag.FlagSet) cmd.Options {
	level, err := logging.ParseLevel(*c.logLevel)
	if err != nil {
		printer.Fprintf(os.Stderr, "Invalid -log-level: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Config{Level: level, Output: os.Stderr, JSON: *c.logJSON})
	logging.SetDefault(logger)

	source := brand.DefaultTopologyPath()
	if fs.NArg() > 0 {
		source = fs.Arg(0)
	}

	load := config.DefaultLoadOptions()
	load.Variables = c.vars

	return cmd.Options{
		Source:     source,
		Load:       load,
		Policy:     *c.policy,
		Format:     *c.format,
		Simulate:   *c.simulate,
		MetricsDir: *c.metricsDir,
		Logger:     logger,
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "apply", "up":
		applyFlags := flag.NewFlagSet("apply", flag.ExitOnError)
		common := newCommonFlags(applyFlags, true)
		applyFlags.Parse(os.Args[2:])

		if _, err := cmd.RunApply(ctx, common.options(applyFlags)); err != nil {
			printer.Fprintf(os.Stderr, "Apply failed: %v\n", err)
			os.Exit(1)
		}

	case "teardown", "down":
		teardownFlags := flag.NewFlagSet("teardown", flag.ExitOnError)
		common := newCommonFlags(teardownFlags, true)
		teardownFlags.Parse(os.Args[2:])

		if _, err := cmd.RunTeardown(ctx, common.options(teardownFlags)); err != nil {
			printer.Fprintf(os.Stderr, "Teardown failed: %v\n", err)
			os.Exit(1)
		}

	case "plan", "diff":
		planFlags := flag.NewFlagSet("plan", flag.ExitOnError)
		common := newCommonFlags(planFlags, false)
		planFlags.Parse(os.Args[2:])

		if _, err := cmd.RunPlan(ctx, common.options(planFlags)); err != nil {
			printer.Fprintf(os.Stderr, "Plan failed: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		common := newCommonFlags(checkFlags, false)
		verbose := checkFlags.Bool("verbose", false, "Print the creation order")
		checkFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		checkFlags.Parse(os.Args[2:])

		if err := cmd.RunCheck(common.options(checkFlags), *verbose); err != nil {
			printer.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "version", "-v", "--version":
		printer.Printf("%s %s (%s)\n", brand.Name, brand.Version, brand.GitCommit)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options] [topology-file]

Commands:
  apply, up        Create or converge the declared topology
  teardown, down   Remove the declared objects %s owns
  plan, diff       Show what apply would change, without changing anything
  check            Validate the topology file (-v prints the creation order)
  version          Show version information
  help             Show this help

Options:
  -var name=value  Set a topology variable (repeatable)
  -policy MODE     Structural drift policy: reject or recreate
  -format FORMAT   Report format: table, json or yaml
  -simulate, -n    Run against an empty in-memory kernel
  -metrics-dir DIR Write a node_exporter textfile (apply, teardown)
  -log-level LEVEL debug, info, warn or error
  -log-json        Log in JSON format

The topology file defaults to %s and may be an http(s) URL.
`, brand.Name, brand.Description, brand.BinaryName, brand.LowerName, brand.DefaultTopologyPath())
}
