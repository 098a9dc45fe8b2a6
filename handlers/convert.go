package handlers

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/models"
)

// ErrConcurrentUpdate is returned when a state row changed between the
// locked read and the write. The caller may retry against fresh state.
var ErrConcurrentUpdate = errors.New("concurrent update")

func productState(row models.Product) domain.ProductState {
	return domain.ProductState{
		ProductID:         row.ProductID,
		Version:           row.Version,
		Manufacturer:      row.Manufacturer,
		ProductType:       row.ProductType,
		BatchID:           row.BatchID,
		ManufacturingDate: row.ManufacturingDate,
		Origin:            row.Origin,
		CurrentLocation:   row.CurrentLocation,
		Metadata:          row.Metadata,
		Status:            domain.ProductStatus(row.CurrentStatus),
		Owner:             row.CurrentOwner,
		RegisteredAt:      row.RegisteredAt,
		LastUpdated:       row.LastUpdated,
		TotalEvents:       row.TotalEvents,
		IsActive:          row.IsActive,
	}
}

func productRow(state domain.ProductState) models.Product {
	return models.Product{
		ProductID:         state.ProductID,
		Version:           state.Version,
		Manufacturer:      state.Manufacturer,
		ProductType:       state.ProductType,
		BatchID:           state.BatchID,
		ManufacturingDate: state.ManufacturingDate,
		Origin:            state.Origin,
		CurrentLocation:   state.CurrentLocation,
		Metadata:          state.Metadata,
		CurrentStatus:     uint8(state.Status),
		CurrentOwner:      state.Owner,
		RegisteredAt:      state.RegisteredAt,
		LastUpdated:       state.LastUpdated,
		TotalEvents:       state.TotalEvents,
		IsActive:          state.IsActive,
	}
}

func certificateState(row models.Certificate) domain.CertificateState {
	return domain.CertificateState{
		CertificateID:       row.CertificateID,
		Version:             row.Version,
		ProductID:           row.ProductID,
		Type:                domain.CertificateType(row.CertificateType),
		IssuingAuthority:    row.IssuingAuthority,
		AuthorityLevel:      domain.AuthorityLevel(row.AuthorityLevel),
		IssuedAt:            row.IssuedAt,
		ValidUntil:          row.ValidUntil,
		IsValid:             row.IsValid,
		IsRevoked:           row.IsRevoked,
		VerificationHash:    row.VerificationHash,
		ComplianceStandards: row.ComplianceStandards,
		CertificateData:     row.CertificateData,
		VerificationCount:   row.VerificationCount,
		LastVerified:        row.LastVerified,
	}
}

func certificateRow(state domain.CertificateState) models.Certificate {
	return models.Certificate{
		CertificateID:       state.CertificateID,
		Version:             state.Version,
		ProductID:           state.ProductID,
		CertificateType:     uint8(state.Type),
		IssuingAuthority:    state.IssuingAuthority,
		AuthorityLevel:      uint8(state.AuthorityLevel),
		IssuedAt:            state.IssuedAt,
		ValidUntil:          state.ValidUntil,
		IsValid:             state.IsValid,
		IsRevoked:           state.IsRevoked,
		VerificationHash:    state.VerificationHash,
		ComplianceStandards: state.ComplianceStandards,
		CertificateData:     state.CertificateData,
		VerificationCount:   state.VerificationCount,
		LastVerified:        state.LastVerified,
	}
}

// lockProduct reads a product row for update inside tx
func lockProduct(tx *gorm.DB, productID string) (*domain.ProductAggregate, error) {
	var row models.Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(domain.ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load product")
	}
	return domain.LoadProductAggregate(productState(row)), nil
}

// lockCertificate reads a certificate row for update inside tx
func lockCertificate(tx *gorm.DB, certificateID string) (*domain.CertificateAggregate, error) {
	var row models.Certificate
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("certificate_id = ?", certificateID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(domain.ErrCertificateNotFound, certificateID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load certificate")
	}
	return domain.LoadCertificateAggregate(certificateState(row)), nil
}

// saveProduct writes the aggregate's state if the row is still at loadedVersion
func saveProduct(tx *gorm.DB, aggregate *domain.ProductAggregate, loadedVersion int) error {
	row := productRow(aggregate.State)
	res := tx.Model(&models.Product{}).
		Where("product_id = ? AND version = ?", row.ProductID, loadedVersion).
		Select("*").
		Updates(&row)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update product")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrConcurrentUpdate, "product %s", row.ProductID)
	}
	return nil
}

// saveCertificate writes the aggregate's state if the row is still at loadedVersion
func saveCertificate(tx *gorm.DB, aggregate *domain.CertificateAggregate, loadedVersion int) error {
	row := certificateRow(aggregate.State)
	res := tx.Model(&models.Certificate{}).
		Where("certificate_id = ? AND version = ?", row.CertificateID, loadedVersion).
		Select("*").
		Updates(&row)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update certificate")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrConcurrentUpdate, "certificate %s", row.CertificateID)
	}
	return nil
}

// translateInsert maps a primary key collision onto the taxonomy
func translateInsert(err error, exists error, id string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrap(exists, id)
	}
	return err
}
