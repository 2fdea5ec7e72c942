package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/verifyd/internal/persistence"
	"github.com/fyrsmithlabs/verifyd/internal/session"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) printProjection(cmd *cobra.Command, proj session.Projection) error {
	if c.jsonOut {
		return printJSON(cmd.OutOrStdout(), proj)
	}
	printProjection(cmd.OutOrStdout(), proj)
	return nil
}

func printProjection(w io.Writer, proj session.Projection) {
	s := proj.Session
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "session\t%s\n", s.ID)
	fmt.Fprintf(tw, "feature\t%s\n", s.FeatureName)
	fmt.Fprintf(tw, "status\t%s\n", s.Status)
	fmt.Fprintf(tw, "progress\t%d/%d (%d%%)\n", proj.Progress.Current, proj.Progress.Total, proj.Progress.Percentage)
	if cp := proj.Current; cp != nil {
		fmt.Fprintf(tw, "current\t#%d %s\n", cp.Index, cp.Action)
		fmt.Fprintf(tw, "expected\t%s\n", cp.ExpectedResult)
	}
	if len(s.PreFlightAnswers) > 0 {
		keys := make([]string, 0, len(s.PreFlightAnswers))
		for k := range s.PreFlightAnswers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(tw, "answer\t%s=%s\n", k, s.PreFlightAnswers[k])
		}
	}
	fmt.Fprintf(tw, "summary\tpassed=%d failed=%d blockers=%d nice_to_have=%d\n",
		s.Summary.Passed, s.Summary.Failed, s.Summary.Blockers, s.Summary.NiceToHave)
	_ = tw.Flush()

	if len(proj.Blockers) > 0 {
		fmt.Fprintf(w, "open blockers:\n")
		for _, item := range proj.Blockers {
			printItem(w, item)
		}
	}
}

func printItem(w io.Writer, item session.FeedbackItem) {
	line := fmt.Sprintf("  - [%s] #%d %s -> %s", item.Category, item.CheckpointIndex, item.Issue, item.Expected)
	if item.Field != "" {
		line += fmt.Sprintf(" (field %s)", item.Field)
	}
	fmt.Fprintln(w, line)
}

func printList(w io.Writer, list []session.Projection) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no live sessions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFEATURE\tSTATUS\tPROGRESS")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\n", p.Session.ID, p.Session.FeatureName, p.Session.Status, p.Progress.Current, p.Progress.Total)
	}
	_ = tw.Flush()
}

func printSnapshots(w io.Writer, snaps []persistence.SnapshotInfo) {
	if len(snaps) == 0 {
		fmt.Fprintln(w, "no saved snapshots")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SNAPSHOT\tSAVED\tSTATUS\tVERSION\tNOTES")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.SnapshotID, s.SavedAt.Format("2006-01-02 15:04:05"), s.Status, s.Version, s.Notes)
	}
	_ = tw.Flush()
}

func printForm(w io.Writer, form session.FormStructure) {
	fmt.Fprintln(w, "fields:")
	if len(form.Fields) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, f := range form.Fields {
		fmt.Fprintf(w, "  %s\t%s\n", f.Value, f.Label)
	}
	fmt.Fprintln(w, "priorities:")
	for _, p := range form.Priorities {
		fmt.Fprintf(w, "  %s\t%s\n", p.Value, p.Label)
	}
	fmt.Fprintln(w, "categories:")
	for _, c := range form.Categories {
		fmt.Fprintf(w, "  %s\t%s\n", c.Value, c.Label)
	}
}
