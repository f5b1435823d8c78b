package main

import (
	"context"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ghostd/internal/coordinator"
	"ghostd/internal/manager"
	"ghostd/pkg/types"
)

func newCompleteCmd(a *app) *cobra.Command {
	var (
		cursor   int
		timeout  time.Duration
		provider string
	)
	cmd := &cobra.Command{
		Use:   "complete FILE",
		Short: "Run one manual completion against FILE and print the suggestion",
		Example: "  ghostd complete notes.md --cursor 120\n" +
			"  ghostd complete main.go --provider openai --timeout 5s",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text := string(b)
			if cursor < 0 {
				cursor = utf8.RuneCountInString(text)
			}
			if provider != "" {
				a.cfg.Provider = provider
			}
			// Model loads happen inside the first request, so the deadline
			// has to cover them here.
			a.cfg.RequestTimeoutMS = int(timeout / time.Millisecond)
			return a.complete(cmd.Context(), args[0], text, cursor, timeout)
		},
	}
	cmd.Flags().IntVar(&cursor, "cursor", -1, "Cursor offset in characters (defaults to end of file)")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Request deadline including model load")
	cmd.Flags().StringVar(&provider, "provider", "", "Override the configured provider: local|openai|gemini")
	return cmd
}

func (a *app) complete(parent context.Context, id, text string, cursor int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout+5*time.Second)
	defer cancel()

	events := make(chan types.Event, 64)
	pub := coordinator.PublisherFunc(func(e types.Event) {
		select {
		case events <- e:
		default:
		}
	})
	st, err := a.buildStack(ctx, prometheus.NewRegistry(), pub)
	if err != nil {
		return err
	}
	defer st.Close()
	mgr := manager.New(st.docs, st.coord, st.events, a.cfg.Local.ModelsDir, a.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return st.coord.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		if err := mgr.OpenDocument(id, text, cursor); err != nil {
			return err
		}
		if err := mgr.TriggerCompletion(id); err != nil {
			return err
		}
		return a.awaitCompletion(gctx, events)
	})
	return g.Wait()
}

// awaitCompletion prints the first ghost text, or fails on the first status
// that ends the request without one.
func (a *app) awaitCompletion(ctx context.Context, events <-chan types.Event) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no completion: %w", ctx.Err())
		case e := <-events:
			if g := e.Ghost; g != nil && g.Text != "" {
				fmt.Fprintln(a.out, g.Text)
				return nil
			}
			s := e.Status
			if s == nil {
				continue
			}
			a.log.Debug().Str("state", string(s.State)).Str("backend", s.BackendInUse).Str("reason", s.Reason).Msg("status")
			switch s.State {
			case types.StatusIdle:
				if s.Reason == "" {
					return fmt.Errorf("backend returned no suggestion")
				}
				return fmt.Errorf("no completion: %s", s.Reason)
			case types.StatusError, types.StatusOffline, types.StatusTimedOut:
				return fmt.Errorf("completion %s: %s", s.State, s.Reason)
			case types.StatusDegraded:
				if s.Reason == string(types.FailureWorkerCrashed) {
					return fmt.Errorf("completion worker crashed")
				}
			}
		}
	}
}
