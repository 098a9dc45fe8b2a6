package queries

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/eventstore"
	"example.com/backstage/services/provenance/internal/cache"
	"example.com/backstage/services/provenance/models"
)

// CertificateSummary is the compact view of a certificate with its live validity
type CertificateSummary struct {
	CertificateID     string     `json:"certificate_id"`
	ProductID         string     `json:"product_id"`
	Type              string     `json:"certificate_type"`
	IssuingAuthority  string     `json:"issuing_authority"`
	AuthorityLevel    string     `json:"authority_level"`
	IssuedAt          time.Time  `json:"issued_at"`
	ValidUntil        time.Time  `json:"valid_until"`
	IsValid           bool       `json:"is_valid"`
	IsRevoked         bool       `json:"is_revoked"`
	IsExpired         bool       `json:"is_expired"`
	VerificationCount uint64     `json:"verification_count"`
	LastVerified      *time.Time `json:"last_verified,omitempty"`
}

// SystemStats are the global counters of the certificate ledger and the log
type SystemStats struct {
	TotalProducts            int64  `json:"total_products"`
	TotalCertificatesIssued  uint64 `json:"total_certificates_issued"`
	TotalCertificatesRevoked uint64 `json:"total_certificates_revoked"`
	TotalVerifications       uint64 `json:"total_verifications"`
	TotalAuthorities         int64  `json:"total_authorities"`
	LedgerLength             uint64 `json:"ledger_length"`
	LastAnchoredSequence     uint64 `json:"last_anchored_sequence"`
	UnanchoredEntries        uint64 `json:"unanchored_entries"`
}

// GetCertificate returns a certificate's stored state
func (s *QueryService) GetCertificate(ctx context.Context, certificateID string) (*models.Certificate, error) {
	var certificate models.Certificate
	err := s.db.WithContext(ctx).Where("certificate_id = ?", certificateID).Take(&certificate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(domain.ErrCertificateNotFound, certificateID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get certificate")
	}
	return &certificate, nil
}

// IsCertificateValid computes validity at the current time
func (s *QueryService) IsCertificateValid(ctx context.Context, certificateID string) (bool, error) {
	certificate, err := s.GetCertificate(ctx, certificateID)
	if err != nil {
		return false, err
	}
	return certificateStateOf(*certificate).ValidAt(s.clock.Now()), nil
}

// GetCertificateSummary returns a certificate with validity and expiry computed now
func (s *QueryService) GetCertificateSummary(ctx context.Context, certificateID string) (*CertificateSummary, error) {
	certificate, err := s.GetCertificate(ctx, certificateID)
	if err != nil {
		return nil, err
	}

	state := certificateStateOf(*certificate)
	now := s.clock.Now()
	return &CertificateSummary{
		CertificateID:     certificate.CertificateID,
		ProductID:         certificate.ProductID,
		Type:              state.Type.String(),
		IssuingAuthority:  certificate.IssuingAuthority,
		AuthorityLevel:    state.AuthorityLevel.String(),
		IssuedAt:          certificate.IssuedAt,
		ValidUntil:        certificate.ValidUntil,
		IsValid:           state.ValidAt(now),
		IsRevoked:         certificate.IsRevoked,
		IsExpired:         state.Expired(now),
		VerificationCount: certificate.VerificationCount,
		LastVerified:      certificate.LastVerified,
	}, nil
}

// GetAuthorityInfo returns a certificate authority, or nil if not registered
func (s *QueryService) GetAuthorityInfo(ctx context.Context, principal string) (*models.CertificateAuthority, error) {
	var authority models.CertificateAuthority
	err := s.db.WithContext(ctx).Where("principal = ?", principal).Take(&authority).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get certificate authority")
	}
	return &authority, nil
}

// GetComplianceStandard returns a compliance standard, or nil if not registered
func (s *QueryService) GetComplianceStandard(ctx context.Context, standardID string) (*models.ComplianceStandard, error) {
	var standard models.ComplianceStandard
	err := s.db.WithContext(ctx).Where("standard_id = ?", standardID).Take(&standard).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get compliance standard")
	}
	return &standard, nil
}

// GetRevocationRecord returns the revocation of a certificate, or nil if it
// was never revoked. The record may be overwritten by a repeated revocation,
// so it is not cached.
func (s *QueryService) GetRevocationRecord(ctx context.Context, certificateID string) (*models.RevocationRecord, error) {
	var record models.RevocationRecord
	err := s.db.WithContext(ctx).Where("certificate_id = ?", certificateID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get revocation record")
	}
	return &record, nil
}

// GetVerificationHistory returns every validation attempt on a certificate, oldest first
func (s *QueryService) GetVerificationHistory(ctx context.Context, certificateID string) ([]models.VerificationRecord, error) {
	if _, err := s.GetCertificate(ctx, certificateID); err != nil {
		return nil, err
	}

	var ids []uint64
	if err := s.db.WithContext(ctx).
		Model(&models.VerificationRecord{}).
		Where("certificate_id = ?", certificateID).
		Order("verification_id ASC").
		Pluck("verification_id", &ids).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list verifications")
	}

	records := make([]models.VerificationRecord, 0, len(ids))
	for _, id := range ids {
		record, err := cachedRow[models.VerificationRecord](ctx, s, cache.VerificationRecordKey(certificateID, id), func(db *gorm.DB, row *models.VerificationRecord) error {
			return db.Where("verification_id = ?", id).Take(row).Error
		})
		if err != nil {
			return nil, err
		}
		if record != nil {
			records = append(records, *record)
		}
	}
	return records, nil
}

// GetSystemStats reads the global counters
func (s *QueryService) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	db := s.db.WithContext(ctx)
	stats := &SystemStats{}

	counters := []struct {
		name string
		dest *uint64
	}{
		{models.CounterCertificatesIssued, &stats.TotalCertificatesIssued},
		{models.CounterCertificatesRevoked, &stats.TotalCertificatesRevoked},
		{models.CounterVerifications, &stats.TotalVerifications},
		{models.CounterLedger, &stats.LedgerLength},
	}
	for _, c := range counters {
		value, err := eventstore.CounterValue(db, c.name)
		if err != nil {
			return nil, err
		}
		*c.dest = value
	}

	if err := db.Model(&models.Product{}).Count(&stats.TotalProducts).Error; err != nil {
		return nil, errors.Wrap(err, "failed to count products")
	}
	if err := db.Model(&models.CertificateAuthority{}).Count(&stats.TotalAuthorities).Error; err != nil {
		return nil, errors.Wrap(err, "failed to count authorities")
	}

	latest, err := s.LatestAnchor(ctx)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		stats.LastAnchoredSequence = latest.ToSequence
	}
	stats.UnanchoredEntries = stats.LedgerLength - stats.LastAnchoredSequence

	return stats, nil
}

func certificateStateOf(row models.Certificate) domain.CertificateState {
	return domain.CertificateState{
		CertificateID:  row.CertificateID,
		Type:           domain.CertificateType(row.CertificateType),
		AuthorityLevel: domain.AuthorityLevel(row.AuthorityLevel),
		ValidUntil:     row.ValidUntil,
		IsValid:        row.IsValid,
		IsRevoked:      row.IsRevoked,
	}
}
