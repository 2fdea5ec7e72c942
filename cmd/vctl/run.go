package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/verifyd/internal/persistence"
	"github.com/fyrsmithlabs/verifyd/internal/plan"
	"github.com/fyrsmithlabs/verifyd/internal/schema"
	"github.com/fyrsmithlabs/verifyd/internal/session"
	"github.com/fyrsmithlabs/verifyd/internal/tui"
)

type runOptions struct {
	planPath   string
	dbPath     string
	fieldsFile string
	resumeID   string
	remoteID   string
	resetData  bool
}

func newRunCmd(c *cli) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Walk through a session in the terminal UI",
		Long: `Run a verification session interactively.

With --plan the session is held in this process; add --db to keep
snapshots in a sqlite file and --resume to continue a saved session.
With --session the UI drives a session held by the verifyd server.

Keys: a approve, r reject, u resolve blockers, s save, R restart, q end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, closeFn, err := opts.backend(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer closeFn()

			model := tui.NewModel(cmd.Context(), backend, tui.WithResetOnRestart(opts.resetData))
			final, err := tea.NewProgram(model,
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
				tea.WithOutput(cmd.OutOrStdout()),
			).Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("terminal UI: %w", err)
			}
			if m, ok := final.(tui.Model); ok {
				printOutcome(cmd.OutOrStdout(), m.Projection())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.planPath, "plan", "", "plan file for a new local session")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "sqlite file for local snapshots (memory when empty)")
	cmd.Flags().StringVar(&opts.fieldsFile, "fields-file", "", "YAML file of feedback field options")
	cmd.Flags().StringVar(&opts.resumeID, "resume", "", "resume a locally saved session (requires --db)")
	cmd.Flags().StringVar(&opts.remoteID, "session", "", "drive a session held by the server")
	cmd.Flags().BoolVar(&opts.resetData, "reset-test-data", false, "reset test data when restarting")
	cmd.MarkFlagsMutuallyExclusive("plan", "resume", "session")
	cmd.MarkFlagsOneRequired("plan", "resume", "session")
	return cmd
}

// backend builds the session backend selected by the flags.
func (o runOptions) backend(ctx context.Context, c *cli) (tui.Backend, func(), error) {
	nop := func() {}
	if o.remoteID != "" {
		cl, err := c.client()
		if err != nil {
			return nil, nop, err
		}
		return tui.RemoteBackend{Client: cl, SessionID: o.remoteID}, nop, nil
	}
	if o.resumeID != "" && o.dbPath == "" {
		return nil, nop, errors.New("--resume requires --db")
	}

	store, closeFn, err := o.localStore(ctx)
	if err != nil {
		return nil, nop, err
	}
	return tui.StoreBackend{Store: store}, closeFn, nil
}

func (o runOptions) localStore(ctx context.Context) (*session.Store, func(), error) {
	cfg := persistence.Config{Driver: persistence.DriverMemory}
	if o.dbPath != "" {
		cfg = persistence.Config{Driver: persistence.DriverSQLite, SQLitePath: o.dbPath}
	}
	gateway, err := persistence.Open(ctx, cfg)
	if err != nil {
		return nil, func() {}, err
	}
	closers := []io.Closer{gateway}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}

	opts := []session.Option{}
	if o.fieldsFile != "" {
		f, err := schema.NewFile(o.fieldsFile, nil)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, f)
		opts = append(opts, session.WithFieldOptions(f))
	}

	var store *session.Store
	if o.resumeID != "" {
		store, err = session.Resume(ctx, gateway, o.resumeID, opts...)
	} else {
		store, err = newPlanStore(ctx, o.planPath, gateway, opts...)
	}
	if err != nil {
		closeAll()
		return nil, func() {}, err
	}
	return store, closeAll, nil
}

func newPlanStore(ctx context.Context, path string, gateway session.Gateway, opts ...session.Option) (*session.Store, error) {
	p, err := plan.LoadFile(path)
	if err != nil {
		return nil, err
	}
	q, err := p.Queue()
	if err != nil {
		return nil, err
	}
	opts = append([]session.Option{session.WithGateway(gateway)}, opts...)
	return session.New(ctx, p.FeatureName, q, opts...)
}

// printOutcome reports where the session was left after the UI exits.
func printOutcome(w io.Writer, proj session.Projection) {
	if proj.Session.ID == "" {
		return
	}
	s := proj.Session.Summary
	fmt.Fprintf(w, "session %s %s: passed=%d failed=%d blockers=%d nice_to_have=%d\n",
		proj.Session.ID, proj.Session.Status, s.Passed, s.Failed, s.Blockers, s.NiceToHave)
	for _, item := range proj.Feedback {
		printItem(w, item)
	}
}
