package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/eventstore"
	"example.com/backstage/services/provenance/internal/clock"
	"example.com/backstage/services/provenance/internal/metrics"
	"example.com/backstage/services/provenance/models"
	"example.com/backstage/services/provenance/utils"
)

// DefaultMaxBulkIssue caps a bulk issuance when no limit is configured
const DefaultMaxBulkIssue = 50

// RegisterAuthorityCommand creates or overwrites a certificate authority
type RegisterAuthorityCommand struct {
	Actor          string                `json:"-" validate:"required,max=64,principal"`
	Principal      string                `json:"principal" validate:"required,max=64,principal"`
	Name           string                `json:"name" validate:"max=128"`
	Level          domain.AuthorityLevel `json:"level"`
	Specialization string                `json:"specialization" validate:"max=128"`
	ContactInfo    string                `json:"contact_info" validate:"max=256"`
}

// SetAuthorityActiveCommand toggles whether an authority may issue
type SetAuthorityActiveCommand struct {
	Actor     string `json:"-" validate:"required,max=64,principal"`
	Principal string `json:"-" validate:"required,max=64,principal"`
	IsActive  bool   `json:"is_active"`
}

// RegisterComplianceStandardCommand upserts a compliance standard
type RegisterComplianceStandardCommand struct {
	Actor                    string                   `json:"-" validate:"required,max=64,principal"`
	StandardID               string                   `json:"standard_id" validate:"required,max=64,ledger_id"`
	Name                     string                   `json:"name" validate:"max=128"`
	Description              string                   `json:"description" validate:"max=512"`
	IssuingBody              string                   `json:"issuing_body" validate:"max=128"`
	RequiredCertificateTypes []domain.CertificateType `json:"required_certificate_types"`
	IsActive                 bool                     `json:"is_active"`
}

// IssueCertificateCommand issues a certificate for a product
type IssueCertificateCommand struct {
	Actor               string                 `json:"-" validate:"required,max=64,principal"`
	CertificateID       string                 `json:"certificate_id" validate:"required,max=64,ledger_id"`
	ProductID           string                 `json:"product_id" validate:"required,max=64,ledger_id"`
	Type                domain.CertificateType `json:"certificate_type"`
	ValidUntil          time.Time              `json:"valid_until"`
	VerificationHash    string                 `json:"verification_hash" validate:"max=256"`
	ComplianceStandards string                 `json:"compliance_standards" validate:"max=512"`
	CertificateData     string                 `json:"certificate_data" validate:"max=512"`
}

// ValidateCertificateCommand records a validation attempt
type ValidateCertificateCommand struct {
	Actor         string `json:"-" validate:"required,max=64,principal"`
	CertificateID string `json:"-" validate:"required,max=64,ledger_id"`
	Method        string `json:"method" validate:"max=64"`
	Notes         string `json:"notes" validate:"max=256"`
}

// RevokeCertificateCommand revokes a certificate
type RevokeCertificateCommand struct {
	Actor         string `json:"-" validate:"required,max=64,principal"`
	CertificateID string `json:"-" validate:"required,max=64,ledger_id"`
	Reason        string `json:"reason" validate:"max=256"`
	IsPermanent   bool   `json:"is_permanent"`
}

// ValidationResult is the outcome of a validation attempt
type ValidationResult struct {
	CertificateID     string `json:"certificate_id"`
	Valid             bool   `json:"valid"`
	VerificationID    uint64 `json:"verification_id"`
	TrustLevel        uint8  `json:"trust_level"`
	VerificationCount uint64 `json:"verification_count"`
}

// CertificateHandler handles certificate ledger commands
type CertificateHandler struct {
	db      *gorm.DB
	store   eventstore.EventStore
	auth    *AuthorizationHandler
	clock   clock.Clock
	locks   *KeyedMutex
	metrics *metrics.Metrics
	maxBulk int
}

// NewCertificateHandler creates a new certificate handler
func NewCertificateHandler(db *gorm.DB, store eventstore.EventStore, auth *AuthorizationHandler, clk clock.Clock, locks *KeyedMutex, m *metrics.Metrics, maxBulk int) *CertificateHandler {
	if maxBulk <= 0 {
		maxBulk = DefaultMaxBulkIssue
	}
	return &CertificateHandler{
		db:      db,
		store:   store,
		auth:    auth,
		clock:   clk,
		locks:   locks,
		metrics: m,
		maxBulk: maxBulk,
	}
}

// HandleRegisterAuthority creates or overwrites an authority. Owner only.
// Overwriting resets the issued counter and the trust score.
func (h *CertificateHandler) HandleRegisterAuthority(ctx context.Context, cmd RegisterAuthorityCommand) (err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("register_authority", start, err) }(time.Now())

	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}
	if !h.auth.IsOwner(cmd.Actor) {
		return errors.Wrapf(domain.ErrNotAuthorized, "%s may not register authorities", cmd.Actor)
	}
	if !cmd.Level.Valid() {
		return errors.Wrapf(domain.ErrInvalidAuthority, "level %d", uint8(cmd.Level))
	}

	log.Info().
		Str("principal", cmd.Principal).
		Str("level", cmd.Level.String()).
		Msg("Handling register authority command")

	unlock := h.locks.Lock(authorityKey(cmd.Principal))
	defer unlock()

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := h.clock.Now()

		authority := models.CertificateAuthority{
			Principal:          cmd.Principal,
			Name:               cmd.Name,
			AuthorityLevel:     uint8(cmd.Level),
			Specialization:     cmd.Specialization,
			IsActive:           true,
			RegisteredAt:       now,
			CertificatesIssued: 0,
			TrustScore:         domain.InitialTrustScore,
			ContactInfo:        cmd.ContactInfo,
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&authority).Error; err != nil {
			return errors.Wrap(err, "failed to save authority")
		}

		aggregate := domain.NewRecordAggregate(domain.AuthorityAggregateType, cmd.Principal)
		if err := positionRecordAggregate(tx, aggregate); err != nil {
			return err
		}
		if err := aggregate.Apply(domain.AuthorityRegisteredEvent{
			Principal:      cmd.Principal,
			Name:           cmd.Name,
			Level:          cmd.Level,
			Specialization: cmd.Specialization,
			ContactInfo:    cmd.ContactInfo,
			Time:           now,
		}); err != nil {
			return err
		}

		_, err := h.store.Append(tx, aggregate, cmd.Actor, now)
		return err
	})
}

// HandleSetAuthorityActive toggles an authority's activation. Owner only.
func (h *CertificateHandler) HandleSetAuthorityActive(ctx context.Context, cmd SetAuthorityActiveCommand) (err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("set_authority_active", start, err) }(time.Now())

	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}
	if !h.auth.IsOwner(cmd.Actor) {
		return errors.Wrapf(domain.ErrNotAuthorized, "%s may not change authorities", cmd.Actor)
	}

	unlock := h.locks.Lock(authorityKey(cmd.Principal))
	defer unlock()

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CertificateAuthority{}).
			Where("principal = ?", cmd.Principal).
			Update("is_active", cmd.IsActive)
		if res.Error != nil {
			return errors.Wrap(res.Error, "failed to update authority")
		}
		if res.RowsAffected == 0 {
			return errors.Wrap(domain.ErrAuthorityNotFound, cmd.Principal)
		}

		now := h.clock.Now()
		aggregate := domain.NewRecordAggregate(domain.AuthorityAggregateType, cmd.Principal)
		if err := positionRecordAggregate(tx, aggregate); err != nil {
			return err
		}
		if err := aggregate.Apply(domain.AuthorityActivationChangedEvent{
			Principal: cmd.Principal,
			IsActive:  cmd.IsActive,
			Time:      now,
		}); err != nil {
			return err
		}

		_, err := h.store.Append(tx, aggregate, cmd.Actor, now)
		return err
	})
}

// HandleRegisterComplianceStandard upserts a standard. Owner only.
func (h *CertificateHandler) HandleRegisterComplianceStandard(ctx context.Context, cmd RegisterComplianceStandardCommand) (err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("register_compliance_standard", start, err) }(time.Now())

	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}
	if !h.auth.IsOwner(cmd.Actor) {
		return errors.Wrapf(domain.ErrNotAuthorized, "%s may not register standards", cmd.Actor)
	}
	for _, t := range cmd.RequiredCertificateTypes {
		if !t.Valid() {
			return errors.Wrapf(domain.ErrInvalidCertificateType, "type %d", uint8(t))
		}
	}

	unlock := h.locks.Lock(standardKey(cmd.StandardID))
	defer unlock()

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := h.clock.Now()

		standard := models.ComplianceStandard{
			StandardID:               cmd.StandardID,
			Name:                     cmd.Name,
			Description:              cmd.Description,
			IssuingBody:              cmd.IssuingBody,
			RequiredCertificateTypes: JoinCertificateTypes(cmd.RequiredCertificateTypes),
			IsActive:                 cmd.IsActive,
			RegisteredBy:             cmd.Actor,
			RegisteredAt:             now,
			UpdatedAt:                now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "standard_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "issuing_body", "required_certificate_types",
				"is_active", "registered_by", "updated_at",
			}),
		}).Create(&standard).Error; err != nil {
			return errors.Wrap(err, "failed to save compliance standard")
		}

		aggregate := domain.NewRecordAggregate(domain.StandardAggregateType, cmd.StandardID)
		if err := positionRecordAggregate(tx, aggregate); err != nil {
			return err
		}
		if err := aggregate.Apply(domain.ComplianceStandardRegisteredEvent{
			StandardID:               cmd.StandardID,
			Name:                     cmd.Name,
			Description:              cmd.Description,
			IssuingBody:              cmd.IssuingBody,
			RequiredCertificateTypes: cmd.RequiredCertificateTypes,
			IsActive:                 cmd.IsActive,
			Time:                     now,
		}); err != nil {
			return err
		}

		_, err := h.store.Append(tx, aggregate, cmd.Actor, now)
		return err
	})
}

// HandleIssueCertificate issues a certificate signed by the caller's authority.
// The product id is recorded by value and not checked against the product ledger.
func (h *CertificateHandler) HandleIssueCertificate(ctx context.Context, cmd IssueCertificateCommand) (certificateID string, err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("issue_certificate", start, err) }(time.Now())

	if err := utils.ValidateStruct(cmd); err != nil {
		return "", err
	}

	unlock := h.locks.Lock(certificateKey(cmd.CertificateID))
	defer unlock()

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return h.issue(tx, cmd, h.clock.Now())
	})
	if err != nil {
		return "", err
	}

	log.Info().
		Str("certificateID", cmd.CertificateID).
		Str("productID", cmd.ProductID).
		Str("authority", cmd.Actor).
		Msg("Certificate issued")

	return cmd.CertificateID, nil
}

// HandleBulkIssue issues every item in one transaction. Any failing item
// aborts the whole batch and its error names the item's index.
func (h *CertificateHandler) HandleBulkIssue(ctx context.Context, actor string, items []IssueCertificateCommand) (ids []string, err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("bulk_issue_certificates", start, err) }(time.Now())

	if len(items) == 0 {
		return nil, domain.Validation("no certificates to issue")
	}
	if len(items) > h.maxBulk {
		return nil, domain.Validation("batch of %d exceeds the limit of %d", len(items), h.maxBulk)
	}

	items = append([]IssueCertificateCommand(nil), items...)
	keys := make([]string, len(items))
	seen := make(map[string]int, len(items))
	for i := range items {
		items[i].Actor = actor
		if err := utils.ValidateStruct(items[i]); err != nil {
			return nil, errors.WithMessagef(err, "item %d", i)
		}
		if first, ok := seen[items[i].CertificateID]; ok {
			return nil, errors.WithMessagef(
				errors.Wrap(domain.ErrCertificateExists, items[i].CertificateID),
				"item %d duplicates item %d", i, first)
		}
		seen[items[i].CertificateID] = i
		keys[i] = certificateKey(items[i].CertificateID)
	}

	unlock := h.locks.LockAll(keys)
	defer unlock()

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := h.clock.Now()
		for i, item := range items {
			if err := h.issue(tx, item, now); err != nil {
				return errors.WithMessagef(err, "item %d", i)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids = make([]string, len(items))
	for i, item := range items {
		ids[i] = item.CertificateID
	}

	log.Info().
		Str("authority", actor).
		Int("count", len(ids)).
		Msg("Certificates issued in bulk")

	return ids, nil
}

func (h *CertificateHandler) issue(tx *gorm.DB, cmd IssueCertificateCommand, now time.Time) error {
	if cmd.ValidUntil.IsZero() {
		return domain.Validation("ValidUntil is required")
	}

	var count int64
	if err := tx.Model(&models.Certificate{}).Where("certificate_id = ?", cmd.CertificateID).Count(&count).Error; err != nil {
		return errors.Wrap(err, "failed to check certificate")
	}
	if count > 0 {
		return errors.Wrap(domain.ErrCertificateExists, cmd.CertificateID)
	}

	var authority models.CertificateAuthority
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("principal = ?", cmd.Actor).
		Take(&authority).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(domain.ErrInvalidAuthority, "%s is not a registered authority", cmd.Actor)
	}
	if err != nil {
		return errors.Wrap(err, "failed to load authority")
	}
	if !authority.IsActive {
		return errors.Wrapf(domain.ErrInvalidAuthority, "%s is not active", cmd.Actor)
	}

	if !cmd.Type.Valid() {
		return errors.Wrapf(domain.ErrInvalidCertificateType, "type %d", uint8(cmd.Type))
	}

	aggregate := domain.NewCertificateAggregate(cmd.CertificateID)
	if err := aggregate.Apply(domain.CertificateIssuedEvent{
		CertificateID:       cmd.CertificateID,
		ProductID:           cmd.ProductID,
		Type:                cmd.Type,
		IssuingAuthority:    cmd.Actor,
		AuthorityLevel:      domain.AuthorityLevel(authority.AuthorityLevel),
		ValidUntil:          cmd.ValidUntil.UTC().Truncate(clock.Precision),
		VerificationHash:    cmd.VerificationHash,
		ComplianceStandards: cmd.ComplianceStandards,
		CertificateData:     cmd.CertificateData,
		Time:                now,
	}); err != nil {
		return err
	}

	row := certificateRow(aggregate.State)
	if err := tx.Create(&row).Error; err != nil {
		return translateInsert(errors.Wrap(err, "failed to create certificate"), domain.ErrCertificateExists, cmd.CertificateID)
	}

	if err := tx.Model(&models.CertificateAuthority{}).
		Where("principal = ?", cmd.Actor).
		UpdateColumn("certificates_issued", gorm.Expr("certificates_issued + ?", 1)).Error; err != nil {
		return errors.Wrap(err, "failed to count issued certificate")
	}
	if _, err := eventstore.IncrementCounter(tx, models.CounterCertificatesIssued, 1); err != nil {
		return err
	}

	_, err = h.store.Append(tx, aggregate, cmd.Actor, now)
	return err
}

// HandleValidateCertificate records a validation attempt. The verification
// record and count are committed whatever the outcome; an invalid
// certificate then fails with CertificateRevoked or CertificateExpired.
func (h *CertificateHandler) HandleValidateCertificate(ctx context.Context, cmd ValidateCertificateCommand) (result ValidationResult, err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("validate_certificate", start, err) }(time.Now())

	if err := utils.ValidateStruct(cmd); err != nil {
		return ValidationResult{}, err
	}

	unlock := h.locks.Lock(certificateKey(cmd.CertificateID))
	defer unlock()

	var state domain.CertificateState
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		aggregate, err := lockCertificate(tx, cmd.CertificateID)
		if err != nil {
			return err
		}
		loadedVersion := aggregate.GetVersion()

		now := h.clock.Now()
		valid := aggregate.State.ValidAt(now)
		trust := uint8(domain.TrustLevelInvalid)
		if valid {
			trust = domain.TrustLevelValid
		}

		verificationID, err := eventstore.NextSequence(tx, models.CounterVerification)
		if err != nil {
			return err
		}
		if _, err := eventstore.IncrementCounter(tx, models.CounterVerifications, 1); err != nil {
			return err
		}

		if err := aggregate.Apply(domain.CertificateVerifiedEvent{
			CertificateID:  cmd.CertificateID,
			VerificationID: verificationID,
			Verifier:       cmd.Actor,
			Result:         valid,
			Notes:          cmd.Notes,
			Method:         cmd.Method,
			TrustLevel:     trust,
			Time:           now,
		}); err != nil {
			return err
		}

		if err := tx.Create(&models.VerificationRecord{
			VerificationID: verificationID,
			CertificateID:  cmd.CertificateID,
			Verifier:       cmd.Actor,
			Timestamp:      now,
			Result:         valid,
			Notes:          cmd.Notes,
			Method:         cmd.Method,
			TrustLevel:     trust,
		}).Error; err != nil {
			return errors.Wrap(err, "failed to create verification record")
		}

		if err := saveCertificate(tx, aggregate, loadedVersion); err != nil {
			return err
		}
		if _, err := h.store.Append(tx, aggregate, cmd.Actor, now); err != nil {
			return err
		}

		state = aggregate.State
		result = ValidationResult{
			CertificateID:     cmd.CertificateID,
			Valid:             valid,
			VerificationID:    verificationID,
			TrustLevel:        trust,
			VerificationCount: aggregate.State.VerificationCount,
		}
		return nil
	})
	if err != nil {
		return ValidationResult{}, err
	}

	log.Info().
		Str("certificateID", cmd.CertificateID).
		Bool("valid", result.Valid).
		Uint64("verificationID", result.VerificationID).
		Msg("Certificate validated")

	if result.Valid {
		return result, nil
	}
	if state.IsRevoked || !state.IsValid {
		return result, errors.Wrap(domain.ErrCertificateRevoked, cmd.CertificateID)
	}
	return result, errors.Wrap(domain.ErrCertificateExpired, cmd.CertificateID)
}

// HandleRevokeCertificate revokes a certificate. The issuer or the owner may
// revoke; a later revocation overwrites the record but never un-revokes.
func (h *CertificateHandler) HandleRevokeCertificate(ctx context.Context, cmd RevokeCertificateCommand) (err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("revoke_certificate", start, err) }(time.Now())

	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}

	unlock := h.locks.Lock(certificateKey(cmd.CertificateID))
	defer unlock()

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		aggregate, err := lockCertificate(tx, cmd.CertificateID)
		if err != nil {
			return err
		}
		loadedVersion := aggregate.GetVersion()

		if cmd.Actor != aggregate.State.IssuingAuthority && !h.auth.IsOwner(cmd.Actor) {
			return errors.Wrapf(domain.ErrNotAuthorized, "%s may not revoke %s", cmd.Actor, cmd.CertificateID)
		}

		reinstatement := ""
		if !cmd.IsPermanent {
			reinstatement = h.auth.Owner()
		}

		firstRevocation := !aggregate.State.IsRevoked
		now := h.clock.Now()
		if err := aggregate.Apply(domain.CertificateRevokedEvent{
			CertificateID:          cmd.CertificateID,
			RevokedBy:              cmd.Actor,
			Reason:                 cmd.Reason,
			IsPermanent:            cmd.IsPermanent,
			ReinstatementAuthority: reinstatement,
			Time:                   now,
		}); err != nil {
			return err
		}

		record := models.RevocationRecord{
			CertificateID:          cmd.CertificateID,
			RevokedBy:              cmd.Actor,
			Timestamp:              now,
			Reason:                 cmd.Reason,
			IsPermanent:            cmd.IsPermanent,
			ReinstatementAuthority: reinstatement,
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
			return errors.Wrap(err, "failed to save revocation record")
		}

		if firstRevocation {
			if _, err := eventstore.IncrementCounter(tx, models.CounterCertificatesRevoked, 1); err != nil {
				return err
			}
		}

		if err := saveCertificate(tx, aggregate, loadedVersion); err != nil {
			return err
		}

		_, err = h.store.Append(tx, aggregate, cmd.Actor, now)
		return err
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("certificateID", cmd.CertificateID).
		Str("revokedBy", cmd.Actor).
		Bool("permanent", cmd.IsPermanent).
		Msg("Certificate revoked")

	return nil
}

// CheckCompliance reports whether a certificate currently satisfies a
// standard. It writes nothing; every unmet condition is ComplianceCheckFailed.
func (h *CertificateHandler) CheckCompliance(ctx context.Context, certificateID, standardID string) (ok bool, err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("check_compliance", start, err) }(time.Now())

	db := h.db.WithContext(ctx)

	var certificate models.Certificate
	if err := db.Where("certificate_id = ?", certificateID).Take(&certificate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, errors.Wrap(domain.ErrCertificateNotFound, certificateID)
		}
		return false, errors.Wrap(err, "failed to load certificate")
	}

	var standard models.ComplianceStandard
	if err := db.Where("standard_id = ?", standardID).Take(&standard).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, errors.Wrap(domain.ErrStandardNotFound, standardID)
		}
		return false, errors.Wrap(err, "failed to load compliance standard")
	}

	if !standard.IsActive {
		return false, errors.Wrapf(domain.ErrComplianceCheckFailed, "standard %s is inactive", standardID)
	}

	required, err := SplitCertificateTypes(standard.RequiredCertificateTypes)
	if err != nil {
		return false, err
	}
	if len(required) > 0 && !containsType(required, domain.CertificateType(certificate.CertificateType)) {
		return false, errors.Wrapf(domain.ErrComplianceCheckFailed,
			"%s certificates do not satisfy %s", domain.CertificateType(certificate.CertificateType), standardID)
	}

	if !containsToken(certificate.ComplianceStandards, standardID) {
		return false, errors.Wrapf(domain.ErrComplianceCheckFailed, "%s does not claim %s", certificateID, standardID)
	}

	if !certificateState(certificate).ValidAt(h.clock.Now()) {
		return false, errors.Wrapf(domain.ErrComplianceCheckFailed, "%s is not currently valid", certificateID)
	}

	return true, nil
}

// JoinCertificateTypes renders types as the comma separated names stored on a standard
func JoinCertificateTypes(types []domain.CertificateType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ",")
}

// SplitCertificateTypes parses the stored list written by JoinCertificateTypes
func SplitCertificateTypes(stored string) ([]domain.CertificateType, error) {
	if stored == "" {
		return nil, nil
	}
	parts := strings.Split(stored, ",")
	types := make([]domain.CertificateType, 0, len(parts))
	for _, part := range parts {
		t, err := domain.ParseCertificateType(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func containsType(types []domain.CertificateType, t domain.CertificateType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// containsToken matches id against a comma, semicolon or whitespace separated list
func containsToken(list, id string) bool {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	for _, f := range fields {
		if f == id {
			return true
		}
	}
	return false
}
