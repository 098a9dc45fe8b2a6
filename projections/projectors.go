package projections

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/models"
)

// Projector turns ledger events into search documents
type Projector interface {
	Project(ctx context.Context, event domain.Event) error
}

// ProductDocument is the searchable form of a product
type ProductDocument struct {
	ProductID         string    `json:"product_id"`
	Manufacturer      string    `json:"manufacturer"`
	ProductType       string    `json:"product_type"`
	BatchID           string    `json:"batch_id"`
	ManufacturingDate string    `json:"manufacturing_date"`
	Origin            string    `json:"origin"`
	CurrentLocation   string    `json:"current_location"`
	Metadata          string    `json:"metadata"`
	Status            string    `json:"status"`
	Owner             string    `json:"owner"`
	TotalEvents       uint64    `json:"total_events"`
	IsActive          bool      `json:"is_active"`
	RegisteredAt      time.Time `json:"registered_at"`
	LastUpdated       time.Time `json:"last_updated"`
	Version           int       `json:"version"`
}

// CertificateDocument is the searchable form of a certificate
type CertificateDocument struct {
	CertificateID       string     `json:"certificate_id"`
	ProductID           string     `json:"product_id"`
	Type                string     `json:"certificate_type"`
	IssuingAuthority    string     `json:"issuing_authority"`
	AuthorityLevel      string     `json:"authority_level"`
	IssuedAt            time.Time  `json:"issued_at"`
	ValidUntil          time.Time  `json:"valid_until"`
	IsValid             bool       `json:"is_valid"`
	IsRevoked           bool       `json:"is_revoked"`
	ComplianceStandards string     `json:"compliance_standards"`
	VerificationCount   uint64     `json:"verification_count"`
	LastVerified        *time.Time `json:"last_verified,omitempty"`
	Version             int        `json:"version"`
}

// LedgerDocument is the searchable form of a ledger entry
type LedgerDocument struct {
	Sequence      uint64      `json:"sequence"`
	AggregateType string      `json:"aggregate_type"`
	AggregateID   string      `json:"aggregate_id"`
	EventType     string      `json:"event_type"`
	Version       int         `json:"version"`
	Actor         string      `json:"actor"`
	Timestamp     time.Time   `json:"timestamp"`
	Data          interface{} `json:"data"`
}

// ProductProjector indexes the current state of products touched by an event
type ProductProjector struct {
	db      *gorm.DB
	indexer Indexer
}

// NewProductProjector creates a new product projector
func NewProductProjector(db *gorm.DB, indexer Indexer) *ProductProjector {
	return &ProductProjector{db: db, indexer: indexer}
}

// Project reindexes the product the event belongs to. The row may already be
// newer than the event; reindexing from it is idempotent.
func (p *ProductProjector) Project(ctx context.Context, event domain.Event) error {
	var row models.Product
	if err := p.db.WithContext(ctx).Where("product_id = ?", event.AggregateID).Take(&row).Error; err != nil {
		return errors.Wrapf(err, "failed to load product %s", event.AggregateID)
	}

	return p.indexer.IndexDocument(ctx, ProductsIndex, row.ProductID, ProductDocument{
		ProductID:         row.ProductID,
		Manufacturer:      row.Manufacturer,
		ProductType:       row.ProductType,
		BatchID:           row.BatchID,
		ManufacturingDate: row.ManufacturingDate,
		Origin:            row.Origin,
		CurrentLocation:   row.CurrentLocation,
		Metadata:          row.Metadata,
		Status:            domain.ProductStatus(row.CurrentStatus).String(),
		Owner:             row.CurrentOwner,
		TotalEvents:       row.TotalEvents,
		IsActive:          row.IsActive,
		RegisteredAt:      row.RegisteredAt,
		LastUpdated:       row.LastUpdated,
		Version:           row.Version,
	})
}

// CertificateProjector indexes the current state of certificates
type CertificateProjector struct {
	db      *gorm.DB
	indexer Indexer
}

// NewCertificateProjector creates a new certificate projector
func NewCertificateProjector(db *gorm.DB, indexer Indexer) *CertificateProjector {
	return &CertificateProjector{db: db, indexer: indexer}
}

// Project reindexes the certificate the event belongs to
func (p *CertificateProjector) Project(ctx context.Context, event domain.Event) error {
	var row models.Certificate
	if err := p.db.WithContext(ctx).Where("certificate_id = ?", event.AggregateID).Take(&row).Error; err != nil {
		return errors.Wrapf(err, "failed to load certificate %s", event.AggregateID)
	}

	return p.indexer.IndexDocument(ctx, CertificatesIndex, row.CertificateID, CertificateDocument{
		CertificateID:       row.CertificateID,
		ProductID:           row.ProductID,
		Type:                domain.CertificateType(row.CertificateType).String(),
		IssuingAuthority:    row.IssuingAuthority,
		AuthorityLevel:      domain.AuthorityLevel(row.AuthorityLevel).String(),
		IssuedAt:            row.IssuedAt,
		ValidUntil:          row.ValidUntil,
		IsValid:             row.IsValid,
		IsRevoked:           row.IsRevoked,
		ComplianceStandards: row.ComplianceStandards,
		VerificationCount:   row.VerificationCount,
		LastVerified:        row.LastVerified,
		Version:             row.Version,
	})
}

// LedgerProjector indexes every ledger entry as an immutable document
type LedgerProjector struct {
	indexer Indexer
}

// NewLedgerProjector creates a new ledger projector
func NewLedgerProjector(indexer Indexer) *LedgerProjector {
	return &LedgerProjector{indexer: indexer}
}

// Project indexes the event under its sequence number
func (p *LedgerProjector) Project(ctx context.Context, event domain.Event) error {
	return p.indexer.IndexDocument(ctx, LedgerIndex, strconv.FormatUint(event.Sequence, 10), LedgerDocument{
		Sequence:      event.Sequence,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.Type,
		Version:       event.Version,
		Actor:         event.Actor,
		Timestamp:     event.Timestamp,
		Data:          event.Data,
	})
}
