package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/backstage/services/giftcard/api"
	"example.com/backstage/services/giftcard/config"
)

const shutdownTimeout = 10 * time.Second

var embeddedWorker bool

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the HTTP API. With --embedded-worker the relay, projection and expiry
sweep run in the same process; this is forced for the in-memory driver and the
in-process event channel, which cannot be shared with a separate worker.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().BoolVar(&embeddedWorker, "embedded-worker", false, "run the background worker in the server process")
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	log.Info().Msg("Starting server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)

	if embeddedWorker || cfg.Database.Driver == config.DriverMemory || cfg.Events.Transport == config.TransportChannel {
		log.Info().Msg("Running worker in the server process")
		a.startWorker(ctx, g)
	}

	server := api.NewServer(cfg, a.dispatcher, a.queries, a.commands, a.tracer)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
		return err
	}

	log.Info().Msg("Server exited properly")
	return nil
}
