package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/backstage/services/giftcard/projections"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the read model from the event log",
	Long: `Truncate the gift_cards read model, reset the search index and cache, then
replay every stored event in order. Stop the workers first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		count, err := projections.NewRebuilder(a.store, a.repo, a.cache, a.indexer).Rebuild(ctx)
		if err != nil {
			log.Error().Err(err).Int("events", count).Msg("Rebuild failed")
			return err
		}
		log.Info().Int("events", count).Msg("Read model rebuilt")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
