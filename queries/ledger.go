package queries

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/integrity"
	"example.com/backstage/services/provenance/internal/cache"
	"example.com/backstage/services/provenance/models"
)

// ListLedgerEntries returns up to limit entries starting at sequence from
func (s *QueryService) ListLedgerEntries(ctx context.Context, from uint64, limit int) ([]models.LedgerEntry, error) {
	if from == 0 {
		from = 1
	}

	var entries []models.LedgerEntry
	if err := s.db.WithContext(ctx).
		Where("sequence >= ?", from).
		Order("sequence ASC").
		Limit(clampLimit(limit)).
		Find(&entries).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list ledger entries")
	}
	return entries, nil
}

// GetLedgerEntry returns one ledger entry, or nil if the sequence is not used yet
func (s *QueryService) GetLedgerEntry(ctx context.Context, sequence uint64) (*models.LedgerEntry, error) {
	return cachedRow[models.LedgerEntry](ctx, s, cache.LedgerEntryKey(sequence), func(db *gorm.DB, row *models.LedgerEntry) error {
		return db.Where("sequence = ?", sequence).Take(row).Error
	})
}

// GetAnchor returns an anchor, or nil if absent. Only published anchors are
// cached; the published flag is the one column that still changes.
func (s *QueryService) GetAnchor(ctx context.Context, anchorID uint64) (*models.Anchor, error) {
	key := cache.AnchorKey(anchorID)

	var anchor models.Anchor
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &anchor); err == nil {
			return &anchor, nil
		}
	}

	err := s.db.WithContext(ctx).Where("anchor_id = ?", anchorID).Take(&anchor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get anchor")
	}

	if anchor.Published {
		s.store(ctx, key, &anchor)
	}
	return &anchor, nil
}

// LatestAnchor returns the newest anchor, or nil before the first one
func (s *QueryService) LatestAnchor(ctx context.Context) (*models.Anchor, error) {
	return integrity.LatestAnchor(ctx, s.db)
}
