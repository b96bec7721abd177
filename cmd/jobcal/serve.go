package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	appLog "jobcal/internal/log"
	"jobcal/internal/web"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, calendar feed and reminder scheduler",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config if set)")
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if serveListen != "" {
		a.cfg.Listen = serveListen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.notifier.Start(ctx)

	// Reminders live in memory; rebuild them before taking requests.
	resync := func() {
		n, err := a.planner.ResyncAll(ctx)
		if err != nil {
			appLog.Error("resync failed", err)
		}
		appLog.Info("resync done", "jobs", n)
	}
	resync()
	if _, err := a.notifier.Cron().AddFunc(a.cfg.Resync, resync); err != nil {
		return errors.Wrapf(err, "invalid resync schedule %q", a.cfg.Resync)
	}

	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           web.NewServer(a.cfg, configPath, a.planner, a.calendar).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+a.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http shutdown", err)
	}
	appLog.Info("jobcal exiting")
	return nil
}
