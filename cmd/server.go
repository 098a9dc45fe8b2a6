package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/backstage/services/provenance/api"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	log.Info().Msg("Starting server")

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.withAnchorer(); err != nil {
		return err
	}

	server := api.NewServer(cfg.Server, api.Dependencies{
		Auth:         a.auth,
		Products:     a.products,
		Certificates: a.certificates,
		Queries:      a.queries,
		Chain:        a.chain,
		Anchorer:     a.anchorer,
		Auditor:      a.auditor,
		Metrics:      a.metrics,
		Tracer:       a.tracer,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
	return nil
}
