// Package serve implements the serve command: the long-running ingestion and
// API service.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/classcount/classcount-go/internal/api"
	"github.com/classcount/classcount-go/internal/conf"
	"github.com/classcount/classcount-go/internal/datastore"
	"github.com/classcount/classcount-go/internal/detector"
	"github.com/classcount/classcount-go/internal/imagestore"
	"github.com/classcount/classcount-go/internal/ingest"
	"github.com/classcount/classcount-go/internal/logging"
	"github.com/classcount/classcount-go/internal/observability"
	"github.com/classcount/classcount-go/internal/report"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ClassCount ingestion and API service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(settings)
		},
	}
}

func runServer(settings *conf.Settings) error {
	logger := logging.ForService("serve")

	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database backend enabled")
	}
	if err := store.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close datastore", "error", err)
		}
	}()

	engine, err := detector.GetShared(settings)
	if err != nil {
		return fmt.Errorf("initializing detector: %w", err)
	}

	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	images := imagestore.New(settings.Storage.ImagePath)
	pipeline := ingest.New(settings, store, images, engine, metrics)
	reports := report.NewService(settings, store)

	server := api.NewServer(settings, store, pipeline, reports, metrics)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
