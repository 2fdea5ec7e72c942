package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/verifyd/internal/plan"
	"github.com/fyrsmithlabs/verifyd/internal/session"
)

func newCreateCmd(c *cli) *cobra.Command {
	var planPath string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session from a plan file (yaml, toml or json)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := plan.LoadFile(planPath)
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			proj, err := cl.Create(cmd.Context(), p.FeatureName, p.Checkpoints)
			if err != nil {
				return err
			}
			return c.printProjection(cmd, proj)
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "path to the plan file")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			list, err := cl.List(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), list)
			}
			printList(cmd.OutOrStdout(), list)
			return nil
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			proj, err := cl.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printProjection(cmd, proj)
		},
	}
}

func newPreFlightCmd(c *cli) *cobra.Command {
	var answers []string
	cmd := &cobra.Command{
		Use:   "preflight <session-id>",
		Short: "Complete pre-flight and start testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseAnswers(answers)
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			proj, err := cl.CompletePreFlight(cmd.Context(), args[0], parsed)
			if err != nil {
				return err
			}
			return c.printProjection(cmd, proj)
		},
	}
	cmd.Flags().StringArrayVar(&answers, "answer", nil, "pre-flight answer as key=value (repeatable)")
	return cmd
}

func newApproveCmd(c *cli) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "approve <session-id>",
		Short: "Approve the current checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			proj, err := cl.Approve(cmd.Context(), args[0], notes)
			if err != nil {
				return err
			}
			return c.printProjection(cmd, proj)
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "optional reviewer notes")
	return cmd
}

func newRejectCmd(c *cli) *cobra.Command {
	var in session.FeedbackInput
	var priority, category string
	cmd := &cobra.Command{
		Use:   "reject <session-id>",
		Short: "Reject the current checkpoint with feedback",
		Long: `Reject the current checkpoint. A blocker rejection blocks the session
until resolved; a nice-to-have rejection records the issue and advances.

Categories: ui, logic, data, workflow, performance, accessibility, other.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Priority = session.Priority(priority)
			in.Category = session.Category(category)
			cl, err := c.client()
			if err != nil {
				return err
			}
			proj, err := cl.Reject(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			return c.printProjection(cmd, proj)
		},
	}
	cmd.Flags().StringVar(&in.Issue, "issue", "", "what went wrong")
	cmd.Flags().StringVar(&in.Expected, "expected", "", "what should have happened")
	cmd.Flags().StringVar(&in.Field, "field", "", "affected field (optional)")
	cmd.Flags().StringVar(&priority, "priority", string(session.PriorityNiceToHave), "blocker or nice-to-have")
	cmd.Flags().StringVar(&category, "category", string(session.CategoryOther), "feedback category")
	return cmd
}

func newResolveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <session-id>",
		Short: "Mark open blockers resolved and continue testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			proj, err := cl.ResolveBlockers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printProjection(cmd, proj)
		},
	}
}

func newRestartCmd(c *cli) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "restart <session-id>",
		Short: "Return the session to pre-flight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			proj, err := cl.Restart(cmd.Context(), args[0], reset)
			if err != nil && proj.Session.ID != "" {
				// The restart committed; only the reset failed.
				if perr := c.printProjection(cmd, proj); perr != nil {
					return perr
				}
				return fmt.Errorf("restarted, but test data reset failed: %w", err)
			}
			if err != nil {
				return err
			}
			return c.printProjection(cmd, proj)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset-test-data", false, "ask the test-data collaborator to reset")
	return cmd
}

func newSaveCmd(c *cli) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "save <session-id>",
		Short: "Save a snapshot of the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			res, err := cl.Save(cmd.Context(), args[0], notes)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved snapshot %s (version %d) at %s\n",
				res.SnapshotID, res.Version, res.SavedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "optional snapshot notes")
	return cmd
}

func newEndCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "end <session-id>",
		Short: "End the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			proj, err := cl.End(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printProjection(cmd, proj)
		},
	}
}

func newFormCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "form <session-id>",
		Short: "Show the feedback form structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			form, err := cl.FeedbackForm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), form)
			}
			printForm(cmd.OutOrStdout(), form)
			return nil
		},
	}
}

func newResumeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Reload a session from its latest saved snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			proj, err := cl.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printProjection(cmd, proj)
		},
	}
}

func newSnapshotsCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "snapshots <session-id>",
		Short: "List saved snapshots of a session, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			snaps, err := cl.Snapshots(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), snaps)
			}
			printSnapshots(cmd.OutOrStdout(), snaps)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum snapshots to list (server default when 0)")
	return cmd
}

func newHealthCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check verifyd server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			h, err := cl.Health(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), h)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s (%d live sessions)\n", h.Status, h.Sessions)
			for name, state := range h.Checks {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", name, state)
			}
			return nil
		},
	}
}

// parseAnswers turns repeated key=value flags into a map.
func parseAnswers(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("answer %q must be key=value", pair)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}
