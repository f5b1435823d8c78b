package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ghostd/internal/httpapi"
	"ghostd/internal/manager"
)

func newServeCmd(a *app) *cobra.Command {
	var addr, origins string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator and its local HTTP bridge",
		Example: "  ghostd serve\n" +
			"  ghostd serve --addr 127.0.0.1:7878 --cors-origins http://localhost:5173",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			if origins != "" {
				a.cfg.HTTP.CORSOrigins = splitCSV(origins)
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (defaults to config http.addr)")
	cmd.Flags().StringVar(&origins, "cors-origins", "", "Comma-separated allowed CORS origins; empty disables CORS")
	return cmd
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := a.buildStack(ctx, prometheus.DefaultRegisterer, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing backends")
		}
	}()
	mgr := manager.New(st.docs, st.coord, st.events, a.cfg.Local.ModelsDir, a.log)

	httpapi.SetLogger(a.log)
	httpapi.SetMaxBodyBytes(a.cfg.HTTP.MaxBodyBytes)
	httpapi.SetBaseContext(ctx)
	if len(a.cfg.HTTP.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, a.cfg.HTTP.CORSOrigins,
			[]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			[]string{"Content-Type", "X-Log-Level"})
	}
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return st.coord.Run(gctx) })
	g.Go(func() error {
		a.log.Info().Str("addr", srv.Addr).Str("provider", a.cfg.Provider).
			Str("models_dir", a.cfg.Local.ModelsDir).Msg("ghostd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("graceful shutdown error")
		}
		return nil
	})
	err = g.Wait()
	a.log.Info().Msg("ghostd stopped")
	return err
}
