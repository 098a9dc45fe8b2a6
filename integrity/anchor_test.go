package integrity

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/models"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishAnchor(ctx context.Context, digest AnchorDigest) error {
	args := m.Called(ctx, digest)
	return args.Error(0)
}

func digestFor(anchor *models.Anchor) interface{} {
	return mock.MatchedBy(func(digest AnchorDigest) bool {
		return digest.AnchorID == anchor.AnchorID && digest.Signature == anchor.Signature
	})
}

func TestCreateAnchorNothingToAnchor(t *testing.T) {
	f := newLedgerFixture(t)

	anchor, err := f.anchorer(0).CreateAnchor(f.ctx)
	require.NoError(t, err)
	assert.Nil(t, anchor)

	latest, err := LatestAnchor(f.ctx, f.db)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestCreateAnchorSealsNewEntries(t *testing.T) {
	f := newLedgerFixture(t)
	anchorer := f.anchorer(0)
	f.appendEntries(t, 5)

	first, err := anchorer.CreateAnchor(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, uint64(1), first.AnchorID)
	assert.Equal(t, uint64(1), first.FromSequence)
	assert.Equal(t, uint64(5), first.ToSequence)
	assert.Equal(t, 5, first.EntryCount)
	assert.Equal(t, f.entry(t, 5).EntryHash, first.ChainHead)
	assert.Empty(t, first.PreviousAnchorRoot)
	assert.Equal(t, "test-key", first.KeyID)

	// Nothing new since the first anchor.
	again, err := anchorer.CreateAnchor(f.ctx)
	require.NoError(t, err)
	assert.Nil(t, again)

	f.appendEntries(t, 2)
	second, err := anchorer.CreateAnchor(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, uint64(2), second.AnchorID)
	assert.Equal(t, uint64(6), second.FromSequence)
	assert.Equal(t, uint64(7), second.ToSequence)
	assert.Equal(t, first.MerkleRoot, second.PreviousAnchorRoot)

	for _, id := range []uint64{1, 2} {
		report, err := anchorer.VerifyAnchor(f.ctx, id)
		require.NoError(t, err)
		assert.True(t, report.Valid, report.Reason)
	}

	latest, err := LatestAnchor(f.ctx, f.db)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), latest.AnchorID)
}

func TestCreateAnchorRespectsMaxSize(t *testing.T) {
	f := newLedgerFixture(t)
	anchorer := f.anchorer(3)
	f.appendEntries(t, 5)

	first, err := anchorer.CreateAnchor(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), first.ToSequence)

	second, err := anchorer.CreateAnchor(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), second.FromSequence)
	assert.Equal(t, uint64(5), second.ToSequence)
	assert.Equal(t, 2, second.EntryCount)
}

func TestCreateAnchorRefusesBrokenChain(t *testing.T) {
	f := newLedgerFixture(t)
	f.appendEntries(t, 4)
	f.tamperPayload(t, 2, false)

	anchor, err := f.anchorer(0).CreateAnchor(f.ctx)
	require.Error(t, err)
	assert.Nil(t, anchor)

	var count int64
	require.NoError(t, f.db.Model(&models.Anchor{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestVerifyAnchorDetectsTampering(t *testing.T) {
	f := newLedgerFixture(t)
	anchorer := f.anchorer(0)
	f.appendEntries(t, 4)

	anchor, err := anchorer.CreateAnchor(f.ctx)
	require.NoError(t, err)

	t.Run("forged signature", func(t *testing.T) {
		other, err := GenerateSigningKeyPair("other")
		require.NoError(t, err)

		forged := *anchor
		report, err := VerifyAnchorAgainst(f.db, forged, other.PublicKey)
		require.NoError(t, err)
		assert.Equal(t, "signature_invalid", report.Reason)
	})

	t.Run("rewritten entry", func(t *testing.T) {
		f.tamperPayload(t, 4, true)
		report, err := anchorer.VerifyAnchor(f.ctx, anchor.AnchorID)
		require.NoError(t, err)
		assert.False(t, report.Valid)
		assert.Equal(t, "merkle_root_mismatch", report.Reason)
	})
}

func TestVerifyAnchorWithPublicKeyOnly(t *testing.T) {
	f := newLedgerFixture(t)
	f.appendEntries(t, 3)

	anchor, err := f.anchorer(0).CreateAnchor(f.ctx)
	require.NoError(t, err)

	report, err := VerifyAnchorAgainst(f.db, *anchor, f.keys.PublicKey)
	require.NoError(t, err)
	assert.True(t, report.Valid)

	edited := *anchor
	edited.MerkleRoot = edited.ChainHead
	report, err = VerifyAnchorAgainst(f.db, edited, f.keys.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, "merkle_root_mismatch", report.Reason)

	resigned := *anchor
	resigned.Signature = anchor.Signature[:len(anchor.Signature)-4] + "AAA="
	report, err = VerifyAnchorAgainst(f.db, resigned, f.keys.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, "signature_invalid", report.Reason)
}

func TestVerifyAnchorNotFound(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.anchorer(0).VerifyAnchor(f.ctx, 9)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInclusionProof(t *testing.T) {
	f := newLedgerFixture(t)
	anchorer := f.anchorer(0)
	f.appendEntries(t, 5)

	_, err := anchorer.InclusionProof(f.ctx, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound, "entries are not provable before anchoring")

	_, err = anchorer.CreateAnchor(f.ctx)
	require.NoError(t, err)

	for seq := uint64(1); seq <= 5; seq++ {
		proof, err := anchorer.InclusionProof(f.ctx, seq)
		require.NoError(t, err)
		assert.Equal(t, f.entry(t, seq).EntryHash, proof.EntryHash)
		assert.True(t, VerifyInclusion(*proof), "sequence %d", seq)
	}

	proof, err := anchorer.InclusionProof(f.ctx, 3)
	require.NoError(t, err)

	forged := *proof
	forged.EntryHash = f.entry(t, 4).EntryHash
	forged.Proof.LeafHash = forged.EntryHash
	assert.False(t, VerifyInclusion(forged))

	shifted := *proof
	shifted.Sequence = 4
	assert.False(t, VerifyInclusion(shifted))

	_, err = anchorer.InclusionProof(f.ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyInclusionRejectsProofsOutsideAnchor(t *testing.T) {
	f := newLedgerFixture(t)
	anchorer := f.anchorer(0)
	f.appendEntries(t, 3)

	_, err := anchorer.CreateAnchor(f.ctx)
	require.NoError(t, err)

	last, err := anchorer.InclusionProof(f.ctx, 3)
	require.NoError(t, err)
	require.True(t, VerifyInclusion(*last))

	// The self-paired last entry reused one position past the anchor.
	past := *last
	past.Sequence = 4
	past.Proof.Index = 3
	assert.False(t, VerifyInclusion(past))

	before := *last
	before.Sequence = 0
	assert.False(t, VerifyInclusion(before))

	widened := *last
	widened.Anchor.EntryCount = 4
	assert.False(t, VerifyInclusion(widened))

	first, err := anchorer.InclusionProof(f.ctx, 1)
	require.NoError(t, err)

	interior := *first
	interior.EntryHash = hashPair(hashLeaf(f.entry(t, 1).EntryHash), hashLeaf(f.entry(t, 2).EntryHash))
	interior.Proof.LeafHash = interior.EntryHash
	interior.Proof.Siblings = first.Proof.Siblings[1:]
	assert.False(t, VerifyInclusion(interior))
}

func TestPublishAnchors(t *testing.T) {
	f := newLedgerFixture(t)
	publisher := new(mockPublisher)
	anchorer := NewAnchorer(f.db, f.keys, publisher, f.clock, f.metrics, 2)
	f.appendEntries(t, 3)

	first, err := anchorer.CreateAnchor(f.ctx)
	require.NoError(t, err)
	second, err := anchorer.CreateAnchor(f.ctx)
	require.NoError(t, err)

	publisher.On("PublishAnchor", mock.Anything, digestFor(first)).Return(nil).Once()
	publisher.On("PublishAnchor", mock.Anything, digestFor(second)).Return(errors.New("queue unavailable")).Once()

	f.clock.Advance(time.Minute)
	published, err := anchorer.PublishAnchors(f.ctx)
	require.Error(t, err)
	assert.Equal(t, 1, published)

	publisher.On("PublishAnchor", mock.Anything, digestFor(second)).Return(nil).Once()
	published, err = anchorer.PublishAnchors(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	published, err = anchorer.PublishAnchors(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, published)

	var stored models.Anchor
	require.NoError(t, f.db.Where("anchor_id = ?", first.AnchorID).Take(&stored).Error)
	assert.True(t, stored.Published)
	require.NotNil(t, stored.PublishedAt)
	assert.True(t, stored.PublishedAt.Equal(epoch.Add(3*time.Second+time.Minute)))

	publisher.AssertExpectations(t)
}
