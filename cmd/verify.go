package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	verifyFrom   uint64
	verifyTo     uint64
	verifyAnchor uint64
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the ledger hash chain, or one signed anchor",
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().Uint64Var(&verifyFrom, "from", 0, "first sequence to check (default: first entry)")
	verifyCmd.Flags().Uint64Var(&verifyTo, "to", 0, "last sequence to check (default: ledger tail)")
	verifyCmd.Flags().Uint64Var(&verifyAnchor, "anchor", 0, "verify the signature and Merkle root of this anchor instead")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	if verifyAnchor != 0 {
		if err := a.withAnchorer(); err != nil {
			return err
		}
		report, err := a.anchorer.VerifyAnchor(ctx, verifyAnchor)
		if err != nil {
			return err
		}
		if !report.Valid {
			return errors.Errorf("anchor %d is invalid: %s", report.AnchorID, report.Reason)
		}
		log.Info().Uint64("anchorId", report.AnchorID).Msg("Anchor is valid")
		return nil
	}

	report, err := a.chain.VerifyChain(ctx, verifyFrom, verifyTo)
	if err != nil {
		return err
	}
	if !report.Intact {
		return errors.Errorf("ledger chain broken at sequence %d: %s", report.BrokenAt, report.Reason)
	}
	log.Info().
		Uint64("checked", report.Checked).
		Str("headHash", report.HeadHash).
		Msg("Ledger chain is intact")
	return nil
}
