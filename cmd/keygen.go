package cmd

import (
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/backstage/services/provenance/integrity"
)

var (
	keygenKeyID string
	keygenNewID bool
	keygenForce bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the ECDSA key pair used to sign ledger anchors",
	RunE:  runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenKeyID, "key-id", "", "key identifier (default: integrity.key_id)")
	keygenCmd.Flags().BoolVar(&keygenNewID, "new-id", false, "generate a fresh random key identifier")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "overwrite an existing key pair")
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	keyID := keygenKeyID
	switch {
	case keygenNewID:
		keyID = "anchor-" + uuid.New().String()
	case keyID == "":
		keyID = cfg.Integrity.KeyID
	}

	if !keygenForce {
		if _, err := integrity.LoadPublicKey(keyID, cfg.Integrity.KeyDir); err == nil {
			return errors.Errorf("key %q already exists in %s, use --force to replace it", keyID, cfg.Integrity.KeyDir)
		}
	}

	keyPair, err := integrity.GenerateSigningKeyPair(keyID)
	if err != nil {
		return err
	}
	if err := integrity.SaveSigningKeyPair(keyPair, cfg.Integrity.KeyDir); err != nil {
		return err
	}

	dir, _ := filepath.Abs(cfg.Integrity.KeyDir)
	log.Info().Str("keyId", keyID).Str("dir", dir).Msg("Signing key pair generated")
	if keyID != cfg.Integrity.KeyID {
		log.Warn().Str("keyId", keyID).Msg("Set integrity.key_id to use this key for anchoring")
	}
	return nil
}
