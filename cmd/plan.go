package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/topoctl/internal/catalog"
	"grimm.is/topoctl/internal/inspect"
	"grimm.is/topoctl/internal/kernel"
	"grimm.is/topoctl/internal/reconcile"
	"grimm.is/topoctl/internal/resolver"
	"grimm.is/topoctl/internal/topology"
)

// RunPlan shows what apply would change. Live state is read as usual but
// every mutation goes to a recorder, so nothing is changed.
func RunPlan(ctx context.Context, opts Options) (*reconcile.Report, error) {
	if err := checkFormat(opts.Format); err != nil {
		return nil, err
	}
	l, err := load(opts)
	if err != nil {
		return nil, err
	}
	plan, err := l.plan(resolver.Forward)
	if err != nil {
		return nil, err
	}
	eopts, err := l.engineOptions(opts, nil)
	if err != nil {
		return nil, err
	}

	q := opts.kernel()
	state, err := inspect.New(q).SnapshotModel(ctx, l.model)
	if err != nil {
		return nil, fmt.Errorf("failed to read live state: %w", err)
	}

	dry := kernel.NewDryRun()
	report, err := reconcile.New(q, dry, eopts).Apply(ctx, l.model, plan)
	if report == nil {
		return nil, err
	}

	out := opts.out()
	if opts.Format != "" && opts.Format != FormatTable {
		if rerr := render(out, opts.Format, report); rerr != nil {
			return report, rerr
		}
		return report, err
	}

	printDiff(out, l.model, plan, state)

	cmds := dry.Commands()
	if len(cmds) == 0 {
		Printer.Fprintf(out, "No changes. The system matches the topology.\n")
	} else {
		Printer.Fprintf(out, "\n%s\n", StyleHeader.Render("Commands:"))
		for _, c := range cmds {
			Printer.Fprintf(out, "  %s\n", c)
		}
	}
	if rerr := renderTable(out, report); rerr != nil {
		return report, rerr
	}
	return report, err
}

// printDiff prints a unified diff from the live attributes to the declared
// ones. Only attributes the topology sets are shown.
func printDiff(w io.Writer, m *topology.Model, plan *resolver.Plan, state inspect.State) {
	var live, declared []string
	for _, key := range plan.Steps {
		obj, ok := m.Object(key)
		if !ok {
			continue
		}
		want := attrFields(obj.Attrs.Type(), obj.Attrs)
		declared = append(declared, fieldLines(key, want)...)

		obs := state[key]
		if obs == nil || obs.Attrs == nil {
			continue
		}
		have := attrFields(obs.Type, obs.Attrs)
		var shown []field
		for _, f := range want {
			if v, ok := lookup(have, f.name); ok && v != "" {
				shown = append(shown, field{f.name, v})
			}
		}
		live = append(live, fieldLines(key, shown)...)
	}

	diff := difflib.UnifiedDiff{
		A:        live,
		B:        declared,
		FromFile: "live",
		ToFile:   "declared",
		Context:  3,
	}
	text, _ := difflib.GetUnifiedDiffString(diff)
	for _, line := range difflib.SplitLines(text) {
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			Printer.Fprintf(w, "%s\n", StyleHeader.Render(line))
		case strings.HasPrefix(line, "@@"):
			Printer.Fprintf(w, "%s\n", StyleDiffHunk.Render(line))
		case strings.HasPrefix(line, "+"):
			Printer.Fprintf(w, "%s\n", StyleDiffAdd.Render(line))
		case strings.HasPrefix(line, "-"):
			Printer.Fprintf(w, "%s\n", StyleDiffRemove.Render(line))
		default:
			Printer.Fprintf(w, "%s\n", line)
		}
	}
}

type field struct {
	name, value string
}

func lookup(fields []field, name string) (string, bool) {
	for _, f := range fields {
		if f.name == name {
			return f.value, true
		}
	}
	return "", false
}

func fieldLines(key catalog.Key, fields []field) []string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, fmt.Sprintf("%s %s=%s\n", key, f.name, f.value))
	}
	return lines
}

// attrFields lists the set attributes of a record. typ is reported first
// so a foreign object of another type shows up as a changed line.
func attrFields(typ string, a catalog.Attributes) []field {
	fields := []field{{"type", typ}}
	add := func(name, value string) {
		if value != "" && value != "0" {
			fields = append(fields, field{name, value})
		}
	}
	if l, ok := a.(catalog.Linked); ok {
		c := l.Common()
		add("mtu", strconv.Itoa(c.MTU))
		add("state", string(c.State))
		add("master", c.Master)
	}
	switch v := a.(type) {
	case catalog.VRFAttrs:
		add("table", strconv.FormatUint(uint64(v.Table), 10))
	case catalog.LinkAttrs:
		if vx := v.VXLAN; vx != nil {
			add("vxlan_id", strconv.Itoa(vx.ID))
			add("underlay", vx.Underlay)
			add("port", strconv.Itoa(vx.Port))
			add("remote", vx.Remote)
			add("local", vx.Local)
		}
	case catalog.VethAttrs:
		add("peer", v.Peer)
	case catalog.AddressAttrs:
		add("link", v.Link)
	}
	return fields
}
