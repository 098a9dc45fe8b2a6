package queries

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/internal/cache"
	"example.com/backstage/services/provenance/internal/clock"
	"example.com/backstage/services/provenance/models"
	"example.com/backstage/services/provenance/projections"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// Searcher runs full-text queries against the search projections
type Searcher interface {
	Search(ctx context.Context, index string, query map[string]interface{}) ([]map[string]interface{}, error)
}

// QueryService serves every read of the ledger. Immutable rows go through
// the cache; mutable state is always read from the database.
type QueryService struct {
	db       *gorm.DB
	cache    cache.Cache
	searcher Searcher
	clock    clock.Clock
}

// NewQueryService creates a query service. A nil searcher disables search.
func NewQueryService(db *gorm.DB, c cache.Cache, searcher Searcher, clk clock.Clock) *QueryService {
	return &QueryService{
		db:       db,
		cache:    c,
		searcher: searcher,
		clock:    clk,
	}
}

// ProductSummary is the compact view of a product
type ProductSummary struct {
	ProductID       string    `json:"product_id"`
	ProductType     string    `json:"product_type"`
	Manufacturer    string    `json:"manufacturer"`
	Owner           string    `json:"owner"`
	Status          string    `json:"status"`
	CurrentLocation string    `json:"current_location"`
	TotalEvents     uint64    `json:"total_events"`
	IsActive        bool      `json:"is_active"`
	LastUpdated     time.Time `json:"last_updated"`
	Certificates    int64     `json:"certificates"`
}

// GetProduct returns a product's current state
func (s *QueryService) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).Where("product_id = ?", productID).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(domain.ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get product")
	}
	return &product, nil
}

// GetStatus returns a product's current status
func (s *QueryService) GetStatus(ctx context.Context, productID string) (domain.ProductStatus, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return domain.ProductStatus(product.CurrentStatus), nil
}

// GetOwner returns a product's current owner
func (s *QueryService) GetOwner(ctx context.Context, productID string) (string, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return "", err
	}
	return product.CurrentOwner, nil
}

// GetSummary returns a product's summary with its certificate count
func (s *QueryService) GetSummary(ctx context.Context, productID string) (*ProductSummary, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	var certificates int64
	if err := s.db.WithContext(ctx).
		Model(&models.Certificate{}).
		Where("product_id = ?", productID).
		Count(&certificates).Error; err != nil {
		return nil, errors.Wrap(err, "failed to count certificates")
	}

	return &ProductSummary{
		ProductID:       product.ProductID,
		ProductType:     product.ProductType,
		Manufacturer:    product.Manufacturer,
		Owner:           product.CurrentOwner,
		Status:          domain.ProductStatus(product.CurrentStatus).String(),
		CurrentLocation: product.CurrentLocation,
		TotalEvents:     product.TotalEvents,
		IsActive:        product.IsActive,
		LastUpdated:     product.LastUpdated,
		Certificates:    certificates,
	}, nil
}

// GetEvent returns one product event, or nil if the product has no such event
func (s *QueryService) GetEvent(ctx context.Context, productID string, eventID uint64) (*models.ProductEvent, error) {
	return cachedRow[models.ProductEvent](ctx, s, cache.ProductEventKey(productID, eventID), func(db *gorm.DB, row *models.ProductEvent) error {
		return db.Where("product_id = ? AND event_id = ?", productID, eventID).Take(row).Error
	})
}

// GetQualityCheck returns one quality check, or nil if absent
func (s *QueryService) GetQualityCheck(ctx context.Context, productID string, checkID uint64) (*models.QualityCheck, error) {
	return cachedRow[models.QualityCheck](ctx, s, cache.QualityCheckKey(productID, checkID), func(db *gorm.DB, row *models.QualityCheck) error {
		return db.Where("product_id = ? AND check_id = ?", productID, checkID).Take(row).Error
	})
}

// GetLocationUpdate returns one location update, or nil if absent
func (s *QueryService) GetLocationUpdate(ctx context.Context, productID string, locationID uint64) (*models.LocationUpdate, error) {
	return cachedRow[models.LocationUpdate](ctx, s, cache.LocationUpdateKey(productID, locationID), func(db *gorm.DB, row *models.LocationUpdate) error {
		return db.Where("product_id = ? AND location_id = ?", productID, locationID).Take(row).Error
	})
}

// GetCustodyTransfer returns one custody record, or nil if absent
func (s *QueryService) GetCustodyTransfer(ctx context.Context, productID string, transferID uint64) (*models.CustodyRecord, error) {
	return cachedRow[models.CustodyRecord](ctx, s, cache.CustodyRecordKey(productID, transferID), func(db *gorm.DB, row *models.CustodyRecord) error {
		return db.Where("product_id = ? AND transfer_id = ?", productID, transferID).Take(row).Error
	})
}

// ListProductEvents pages through a product's events in id order
func (s *QueryService) ListProductEvents(ctx context.Context, productID string, offset, limit int) ([]models.ProductEvent, error) {
	var events []models.ProductEvent
	err := s.listForProduct(ctx, productID, &events, func(db *gorm.DB) *gorm.DB {
		return db.Order("event_id ASC").Offset(clampOffset(offset)).Limit(clampLimit(limit))
	})
	return events, err
}

// ListCustodyHistory returns every custody transfer of a product, oldest first
func (s *QueryService) ListCustodyHistory(ctx context.Context, productID string) ([]models.CustodyRecord, error) {
	var records []models.CustodyRecord
	err := s.listForProduct(ctx, productID, &records, func(db *gorm.DB) *gorm.DB {
		return db.Order("transfer_id ASC")
	})
	return records, err
}

// ListQualityChecks returns every quality check of a product, oldest first
func (s *QueryService) ListQualityChecks(ctx context.Context, productID string) ([]models.QualityCheck, error) {
	var checks []models.QualityCheck
	err := s.listForProduct(ctx, productID, &checks, func(db *gorm.DB) *gorm.DB {
		return db.Order("check_id ASC")
	})
	return checks, err
}

// ListLocationHistory returns every location update of a product, oldest first
func (s *QueryService) ListLocationHistory(ctx context.Context, productID string) ([]models.LocationUpdate, error) {
	var updates []models.LocationUpdate
	err := s.listForProduct(ctx, productID, &updates, func(db *gorm.DB) *gorm.DB {
		return db.Order("location_id ASC")
	})
	return updates, err
}

// ListCertificatesForProduct returns the certificates naming a product.
// Certificates may name products that were never registered.
func (s *QueryService) ListCertificatesForProduct(ctx context.Context, productID string) ([]models.Certificate, error) {
	var certificates []models.Certificate
	if err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("issued_at ASC, certificate_id ASC").
		Find(&certificates).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list certificates")
	}
	return certificates, nil
}

// SearchProducts runs a full-text query over the product projection
func (s *QueryService) SearchProducts(ctx context.Context, text string, from, size int) ([]map[string]interface{}, error) {
	return s.search(ctx, projections.ProductsIndex, text, from, size, []string{
		"product_id", "product_type", "batch_id", "origin", "current_location", "manufacturer", "owner", "metadata",
	})
}

// SearchCertificates runs a full-text query over the certificate projection
func (s *QueryService) SearchCertificates(ctx context.Context, text string, from, size int) ([]map[string]interface{}, error) {
	return s.search(ctx, projections.CertificatesIndex, text, from, size, []string{
		"certificate_id", "product_id", "certificate_type", "issuing_authority", "compliance_standards",
	})
}

func (s *QueryService) search(ctx context.Context, index, text string, from, size int, fields []string) ([]map[string]interface{}, error) {
	if s.searcher == nil {
		return nil, domain.Validation("search disabled")
	}
	if text == "" {
		return nil, domain.Validation("search query is empty")
	}

	return s.searcher.Search(ctx, index, map[string]interface{}{
		"from": clampOffset(from),
		"size": clampLimit(size),
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"fields": fields,
			},
		},
	})
}

// listForProduct fails NotFound for unknown products, so an empty list
// always means a registered product without rows
func (s *QueryService) listForProduct(ctx context.Context, productID string, dest interface{}, scope func(*gorm.DB) *gorm.DB) error {
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return err
	}
	if err := scope(s.db.WithContext(ctx).Where("product_id = ?", productID)).Find(dest).Error; err != nil {
		return errors.Wrap(err, "failed to list product rows")
	}
	return nil
}

// cachedRow reads an immutable row through the cache. A missing row is
// reported as nil without error and is not cached.
func cachedRow[T any](ctx context.Context, s *QueryService, key string, load func(*gorm.DB, *T) error) (*T, error) {
	var row T
	if s.cache != nil {
		err := s.cache.Get(ctx, key, &row)
		if err == nil {
			return &row, nil
		}
		if !errors.Is(err, cache.ErrMiss) && !errors.Is(err, cache.ErrDisabled) {
			log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
	}

	if err := load(s.db.WithContext(ctx), &row); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to load %s", key)
	}

	s.store(ctx, key, &row)
	return &row, nil
}

func (s *QueryService) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil && !errors.Is(err, cache.ErrDisabled) {
		log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
