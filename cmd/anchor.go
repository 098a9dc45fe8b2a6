package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var anchorCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Seal unanchored ledger entries into a signed anchor and publish it",
	RunE:  runAnchor,
}

func init() {
	rootCmd.AddCommand(anchorCmd)
}

func runAnchor(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.withAnchorer(); err != nil {
		return err
	}

	ctx := context.Background()
	anchor, err := a.anchorer.CreateAnchor(ctx)
	if err != nil {
		return err
	}
	if anchor == nil {
		log.Info().Msg("No unanchored ledger entries")
	} else {
		log.Info().
			Uint64("anchorId", anchor.AnchorID).
			Uint64("from", anchor.FromSequence).
			Uint64("to", anchor.ToSequence).
			Str("merkleRoot", anchor.MerkleRoot).
			Msg("Anchor created")
	}

	published, err := a.anchorer.PublishAnchors(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("published", published).Msg("Anchors published")
	return nil
}
