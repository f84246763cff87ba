package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"grimm.is/topoctl/internal/catalog"
	"grimm.is/topoctl/internal/resolver"
)

// RunCheck validates the topology file and prints the creation order. It
// never talks to the kernel.
func RunCheck(opts Options, verbose bool) error {
	l, err := load(opts)
	if err != nil {
		return err
	}
	plan, err := l.plan(resolver.Forward)
	if err != nil {
		return fmt.Errorf("topology invalid: %w", err)
	}
	if _, err := l.engineOptions(opts, nil); err != nil {
		return err
	}

	out := opts.out()
	result := l.result
	Printer.Fprintf(out, "%s\n", StyleStatusGood.Render("Topology valid!"))
	Printer.Fprintf(out, "Schema Version: %s\n", result.Version)
	Printer.Fprintf(out, "Namespaces: %d\n", len(l.model.Namespaces()))

	counts := make(map[catalog.Kind]int)
	for _, obj := range l.model.Objects() {
		counts[obj.Key.Kind]++
	}
	for _, kind := range catalog.Kinds() {
		if kind == catalog.KindNamespace || counts[kind] == 0 {
			continue
		}
		Printer.Fprintf(out, "%s: %d\n", kindTitle(kind), counts[kind])
	}
	Printer.Fprintf(out, "Relations: %d\n", len(l.model.Relations()))
	Printer.Fprintf(out, "Diverged Policy: %s\n", result.Settings.Policy)
	for _, w := range result.Warnings {
		Printer.Fprintf(out, "%s %s\n", StyleStatusWarn.Render("warning:"), w)
	}

	if !verbose {
		return nil
	}

	Printer.Fprintf(out, "\n%s\n", StyleHeader.Render("Creation order:"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tOBJECT\tREQUIRES")
	for i, key := range plan.Steps {
		reqs := make([]string, 0, len(plan.Requires[key]))
		for _, r := range plan.Requires[key] {
			reqs = append(reqs, r.String())
		}
		requires := strings.Join(reqs, ", ")
		if requires == "" {
			requires = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, key, requires)
	}
	return w.Flush()
}

func kindTitle(k catalog.Kind) string {
	switch k {
	case catalog.KindVRF:
		return "VRFs"
	case catalog.KindAddress:
		return "Addresses"
	}
	s := k.String()
	return strings.ToUpper(s[:1]) + s[1:] + "s"
}
