package integrity

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/eventstore"
	"example.com/backstage/services/provenance/internal/clock"
	"example.com/backstage/services/provenance/internal/metrics"
	"example.com/backstage/services/provenance/models"
)

const defaultMaxAnchorSize = 10000

var errNothingToAnchor = errors.New("nothing to anchor")

// Publisher exports anchor digests somewhere the operator does not control
type Publisher interface {
	PublishAnchor(ctx context.Context, digest AnchorDigest) error
}

// AnchorDigest is the public, self-contained form of an anchor
type AnchorDigest struct {
	AnchorID           uint64    `json:"anchor_id"`
	FromSequence       uint64    `json:"from_sequence"`
	ToSequence         uint64    `json:"to_sequence"`
	EntryCount         int       `json:"entry_count"`
	MerkleRoot         string    `json:"merkle_root"`
	ChainHead          string    `json:"chain_head"`
	PreviousAnchorRoot string    `json:"previous_anchor_root"`
	Digest             string    `json:"digest"`
	Signature          string    `json:"signature"`
	KeyID              string    `json:"key_id"`
	CreatedAt          time.Time `json:"created_at"`
}

// DigestOf converts a stored anchor to its published form
func DigestOf(anchor models.Anchor) AnchorDigest {
	return AnchorDigest{
		AnchorID:           anchor.AnchorID,
		FromSequence:       anchor.FromSequence,
		ToSequence:         anchor.ToSequence,
		EntryCount:         anchor.EntryCount,
		MerkleRoot:         anchor.MerkleRoot,
		ChainHead:          anchor.ChainHead,
		PreviousAnchorRoot: anchor.PreviousAnchorRoot,
		Digest:             anchor.Digest,
		Signature:          anchor.Signature,
		KeyID:              anchor.KeyID,
		CreatedAt:          anchor.CreatedAt,
	}
}

// AnchorReport is the result of re-checking one anchor against the ledger
type AnchorReport struct {
	AnchorID uint64 `json:"anchor_id"`
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
}

// InclusionProof shows that one ledger entry is covered by a signed anchor
type InclusionProof struct {
	Sequence  uint64       `json:"sequence"`
	Anchor    AnchorDigest `json:"anchor"`
	Proof     MerkleProof  `json:"proof"`
	EntryHash string       `json:"entry_hash"`
}

// Anchorer seals ranges of the ledger under signed Merkle roots
type Anchorer struct {
	db        *gorm.DB
	keys      *SigningKeyPair
	publisher Publisher
	clock     clock.Clock
	metrics   *metrics.Metrics
	maxSize   int
}

// NewAnchorer creates an anchorer signing with keys
func NewAnchorer(db *gorm.DB, keys *SigningKeyPair, publisher Publisher, clk clock.Clock, m *metrics.Metrics, maxSize int) *Anchorer {
	if maxSize <= 0 {
		maxSize = defaultMaxAnchorSize
	}
	if publisher == nil {
		publisher = LogPublisher{}
	}
	return &Anchorer{
		db:        db,
		keys:      keys,
		publisher: publisher,
		clock:     clk,
		metrics:   m,
		maxSize:   maxSize,
	}
}

// CreateAnchor seals every entry after the last anchor, up to the size limit.
// It returns nil without error when there is nothing new to seal.
func (a *Anchorer) CreateAnchor(ctx context.Context) (*models.Anchor, error) {
	var anchor models.Anchor

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Taking the anchor counter first serializes concurrent anchorers.
		anchorID, err := eventstore.NextSequence(tx, models.CounterAnchor)
		if err != nil {
			return err
		}

		var previous models.Anchor
		hasPrevious := true
		if err := tx.Order("to_sequence DESC").Take(&previous).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(err, "failed to load previous anchor")
			}
			hasPrevious = false
		}

		var entries []models.LedgerEntry
		if err := tx.Select("sequence", "entry_hash").
			Where("sequence > ?", previous.ToSequence).
			Order("sequence ASC").
			Limit(a.maxSize).
			Find(&entries).Error; err != nil {
			return errors.Wrap(err, "failed to read ledger entries")
		}
		if len(entries) == 0 {
			return errNothingToAnchor
		}

		from, to := entries[0].Sequence, entries[len(entries)-1].Sequence
		report, err := verifyRange(tx, from, to, a.maxSize)
		if err != nil {
			return err
		}
		if !report.Intact {
			return errors.Errorf("refusing to anchor a broken chain: %s at %d", report.Reason, report.BrokenAt)
		}

		leaves := make([]string, len(entries))
		for i, entry := range entries {
			leaves[i] = entry.EntryHash
		}

		anchor = models.Anchor{
			AnchorID:     anchorID,
			FromSequence: from,
			ToSequence:   to,
			EntryCount:   len(entries),
			MerkleRoot:   MerkleRoot(leaves),
			ChainHead:    entries[len(entries)-1].EntryHash,
			KeyID:        a.keys.KeyID,
			CreatedAt:    a.clock.Now(),
		}
		if hasPrevious {
			anchor.PreviousAnchorRoot = previous.MerkleRoot
		}

		anchor.Digest = ComputeAnchorDigest(anchor)
		digest, _ := hex.DecodeString(anchor.Digest)
		if anchor.Signature, err = a.keys.Sign(digest); err != nil {
			return err
		}

		if err := tx.Create(&anchor).Error; err != nil {
			return errors.Wrap(err, "failed to save anchor")
		}
		return nil
	})
	if errors.Is(err, errNothingToAnchor) {
		log.Debug().Msg("No new ledger entries to anchor")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.metrics.IncrementCounter("anchors_created")
	a.metrics.SetGauge("anchored_sequence", int64(anchor.ToSequence))

	log.Info().
		Uint64("anchorID", anchor.AnchorID).
		Uint64("from", anchor.FromSequence).
		Uint64("to", anchor.ToSequence).
		Str("merkleRoot", anchor.MerkleRoot).
		Msg("Anchor created")

	return &anchor, nil
}

// PublishAnchors hands every unpublished anchor to the publisher, oldest
// first, and marks each one published once the publisher accepts it.
func (a *Anchorer) PublishAnchors(ctx context.Context) (int, error) {
	var pending []models.Anchor
	if err := a.db.WithContext(ctx).
		Where("published = ?", false).
		Order("anchor_id ASC").
		Find(&pending).Error; err != nil {
		return 0, errors.Wrap(err, "failed to load unpublished anchors")
	}

	published := 0
	for _, anchor := range pending {
		if err := a.publisher.PublishAnchor(ctx, DigestOf(anchor)); err != nil {
			return published, errors.Wrapf(err, "failed to publish anchor %d", anchor.AnchorID)
		}

		now := a.clock.Now()
		if err := a.db.WithContext(ctx).
			Model(&models.Anchor{}).
			Where("anchor_id = ?", anchor.AnchorID).
			Updates(map[string]interface{}{"published": true, "published_at": now}).Error; err != nil {
			return published, errors.Wrap(err, "failed to mark anchor published")
		}
		published++
		a.metrics.IncrementCounter("anchors_published")
	}

	return published, nil
}

// VerifyAnchor recomputes an anchor from the ledger and checks its signature
func (a *Anchorer) VerifyAnchor(ctx context.Context, anchorID uint64) (AnchorReport, error) {
	anchor, err := loadAnchor(a.db.WithContext(ctx), anchorID)
	if err != nil {
		return AnchorReport{}, err
	}
	return VerifyAnchorAgainst(a.db.WithContext(ctx), anchor, a.keys.PublicKey)
}

// VerifyAnchorAgainst checks a stored anchor with only a public key, as an auditor would
func VerifyAnchorAgainst(db *gorm.DB, anchor models.Anchor, publicKey *ecdsa.PublicKey) (AnchorReport, error) {
	report := AnchorReport{AnchorID: anchor.AnchorID}
	fail := func(reason string) (AnchorReport, error) {
		report.Reason = reason
		return report, nil
	}

	chain, err := verifyRange(db, anchor.FromSequence, anchor.ToSequence, defaultVerifyBatch)
	if err != nil {
		return report, err
	}
	if !chain.Intact {
		return fail(fmt.Sprintf("%s at %d", chain.Reason, chain.BrokenAt))
	}

	leaves, err := entryHashes(db, anchor.FromSequence, anchor.ToSequence)
	if err != nil {
		return report, err
	}
	if len(leaves) != anchor.EntryCount {
		return fail("entry_count_mismatch")
	}
	if MerkleRoot(leaves) != anchor.MerkleRoot {
		return fail("merkle_root_mismatch")
	}
	if leaves[len(leaves)-1] != anchor.ChainHead {
		return fail("chain_head_mismatch")
	}
	if ComputeAnchorDigest(anchor) != anchor.Digest {
		return fail("digest_mismatch")
	}

	digest, err := hex.DecodeString(anchor.Digest)
	if err != nil {
		return fail("digest_mismatch")
	}
	ok, err := VerifySignature(publicKey, digest, anchor.Signature)
	if err != nil || !ok {
		return fail("signature_invalid")
	}

	report.Valid = true
	return report, nil
}

// InclusionProof proves that the entry at sequence is covered by an anchor
func (a *Anchorer) InclusionProof(ctx context.Context, sequence uint64) (*InclusionProof, error) {
	db := a.db.WithContext(ctx)

	var entry models.LedgerEntry
	if err := db.Select("sequence", "entry_hash").Where("sequence = ?", sequence).Take(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrEntryNotFound, "sequence %d", sequence)
		}
		return nil, errors.Wrap(err, "failed to load ledger entry")
	}

	var anchor models.Anchor
	if err := db.Where("from_sequence <= ? AND to_sequence >= ?", sequence, sequence).Take(&anchor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrAnchorNotFound, "sequence %d is not anchored yet", sequence)
		}
		return nil, errors.Wrap(err, "failed to load anchor")
	}

	leaves, err := entryHashes(db, anchor.FromSequence, anchor.ToSequence)
	if err != nil {
		return nil, err
	}
	_, proofs := BuildMerkleTree(leaves)
	index := int(sequence - anchor.FromSequence)
	if index >= len(proofs) {
		return nil, errors.Errorf("anchor %d does not cover sequence %d", anchor.AnchorID, sequence)
	}

	return &InclusionProof{
		Sequence:  sequence,
		Anchor:    DigestOf(anchor),
		Proof:     proofs[index],
		EntryHash: entry.EntryHash,
	}, nil
}

// VerifyInclusion checks a proof without touching the ledger. The anchor's
// signature must be checked separately against the operator's public key.
func VerifyInclusion(proof InclusionProof) bool {
	anchor := proof.Anchor
	if anchor.EntryCount <= 0 || anchor.ToSequence < anchor.FromSequence {
		return false
	}
	// from and to are signed; the entry count must agree with them
	if uint64(anchor.EntryCount) != anchor.ToSequence-anchor.FromSequence+1 {
		return false
	}
	if proof.Sequence < anchor.FromSequence || proof.Sequence > anchor.ToSequence {
		return false
	}
	if proof.Proof.LeafHash != proof.EntryHash {
		return false
	}
	if proof.Proof.Index < 0 || uint64(proof.Proof.Index) != proof.Sequence-anchor.FromSequence {
		return false
	}
	return VerifyMerkleProof(proof.Proof, anchor.MerkleRoot, anchor.EntryCount)
}

// ComputeAnchorDigest hashes the fields an anchor commits to
func ComputeAnchorDigest(anchor models.Anchor) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%d|%s|%s|%s",
		anchor.AnchorID,
		anchor.FromSequence,
		anchor.ToSequence,
		anchor.MerkleRoot,
		anchor.ChainHead,
		anchor.PreviousAnchorRoot,
	)))
	return hex.EncodeToString(sum[:])
}

// LatestAnchor returns the anchor covering the newest entries, or nil if none exist
func LatestAnchor(ctx context.Context, db *gorm.DB) (*models.Anchor, error) {
	var anchor models.Anchor
	err := db.WithContext(ctx).Order("to_sequence DESC").Take(&anchor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load latest anchor")
	}
	return &anchor, nil
}

func loadAnchor(db *gorm.DB, anchorID uint64) (models.Anchor, error) {
	var anchor models.Anchor
	err := db.Where("anchor_id = ?", anchorID).Take(&anchor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return anchor, errors.Wrapf(domain.ErrAnchorNotFound, "%d", anchorID)
	}
	if err != nil {
		return anchor, errors.Wrap(err, "failed to load anchor")
	}
	return anchor, nil
}

func entryHashes(db *gorm.DB, from, to uint64) ([]string, error) {
	var hashes []string
	if err := db.Model(&models.LedgerEntry{}).
		Where("sequence >= ? AND sequence <= ?", from, to).
		Order("sequence ASC").
		Pluck("entry_hash", &hashes).Error; err != nil {
		return nil, errors.Wrap(err, "failed to read entry hashes")
	}
	return hashes, nil
}

// LogPublisher writes digests to the service log when no external sink is configured
type LogPublisher struct{}

// PublishAnchor logs the digest
func (LogPublisher) PublishAnchor(_ context.Context, digest AnchorDigest) error {
	log.Info().
		Uint64("anchorID", digest.AnchorID).
		Uint64("from", digest.FromSequence).
		Uint64("to", digest.ToSequence).
		Str("merkleRoot", digest.MerkleRoot).
		Str("digest", digest.Digest).
		Str("signature", digest.Signature).
		Str("keyID", digest.KeyID).
		Msg("Anchor published")
	return nil
}
