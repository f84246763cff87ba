package cmd

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"grimm.is/topoctl/internal/reconcile"
)

// outcomeWidth fits the longest outcome name.
const outcomeWidth = 9

func checkFormat(format string) error {
	switch format {
	case "", FormatTable, FormatJSON, FormatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

// render writes the report in the requested format.
func render(w io.Writer, format string, r *reconcile.Report) error {
	switch format {
	case "", FormatTable:
		return renderTable(w, r)
	case FormatJSON:
		data, err := r.JSON()
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	case FormatYAML:
		data, err := r.YAML()
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
	return checkFormat(format)
}

// renderTable prints one row per object. The styled outcome column is kept
// out of the tabwriter since escape sequences would skew its widths.
func renderTable(w io.Writer, r *reconcile.Report) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OBJECT\tATTEMPTS\tDETAIL")
	for _, res := range r.Results {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", res.Object, res.Attempts, detail(res))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	rows := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	Printer.Fprintf(w, "%s  %s\n", StyleHeader.Render(pad("OUTCOME")), rows[0])
	for i, res := range r.Results {
		Printer.Fprintf(w, "%s  %s\n", outcomeStyle(res.Outcome).Render(pad(string(res.Outcome))), rows[i+1])
	}
	Printer.Fprintf(w, "\n%s: %s\n", r.Action, summaryStyle(r).Render(r.Summary()))
	return nil
}

func pad(s string) string {
	return fmt.Sprintf("%-*s", outcomeWidth, s)
}

// detail is the most useful single line about a result.
func detail(res reconcile.Result) string {
	switch {
	case res.Reason != "":
		return res.Reason
	case len(res.Operations) > 0:
		return strings.Join(res.Operations, ", ")
	case len(res.Drift) > 0:
		return "drift: " + strings.Join(res.Drift, ", ")
	}
	return ""
}
