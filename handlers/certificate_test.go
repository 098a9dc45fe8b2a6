package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/eventstore"
	"example.com/backstage/services/provenance/models"
)

func (f *fixture) issue(t *testing.T, id string, validFor time.Duration) {
	t.Helper()
	_, err := f.certificates.HandleIssueCertificate(f.ctx, IssueCertificateCommand{
		Actor:               authorityA,
		CertificateID:       id,
		ProductID:           "PROD-1",
		Type:                domain.CertificateOrganic,
		ValidUntil:          f.clock.Now().Add(validFor),
		VerificationHash:    "9f2c",
		ComplianceStandards: "EU-ORG-2018,USDA-NOP",
		CertificateData:     `{"lab":"L-3"}`,
	})
	require.NoError(t, err)
}

func (f *fixture) verificationRecords(t *testing.T, certificateID string) []models.VerificationRecord {
	t.Helper()
	var records []models.VerificationRecord
	require.NoError(t, f.db.Where("certificate_id = ?", certificateID).Order("verification_id ASC").Find(&records).Error)
	return records
}

func TestCertificateLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	f.registerAuthority(t, authorityA, domain.AuthorityCertifiedInspector)
	f.issue(t, "CERT-1", 1000*time.Second)

	cert := f.certificate(t, "CERT-1")
	require.True(t, cert.IsValid)
	require.False(t, cert.IsRevoked)
	require.Equal(t, uint8(domain.AuthorityCertifiedInspector), cert.AuthorityLevel)
	require.Zero(t, cert.VerificationCount)

	result, err := f.certificates.HandleValidateCertificate(f.ctx, ValidateCertificateCommand{
		Actor:         "retailer",
		CertificateID: "CERT-1",
		Method:        "qr",
	})
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, uint64(1), result.VerificationCount)
	require.Equal(t, uint8(domain.TrustLevelValid), result.TrustLevel)

	require.NoError(t, f.certificates.HandleRevokeCertificate(f.ctx, RevokeCertificateCommand{
		Actor:         authorityA,
		CertificateID: "CERT-1",
		Reason:        "fraud",
		IsPermanent:   true,
	}))

	result, err = f.certificates.HandleValidateCertificate(f.ctx, ValidateCertificateCommand{
		Actor:         "retailer",
		CertificateID: "CERT-1",
	})
	require.ErrorIs(t, err, domain.ErrCertificateRevoked)
	require.False(t, result.Valid)

	cert = f.certificate(t, "CERT-1")
	require.False(t, cert.IsValid)
	require.True(t, cert.IsRevoked)
	require.Equal(t, uint64(2), cert.VerificationCount)
	require.NotNil(t, cert.LastVerified)

	var revocation models.RevocationRecord
	require.NoError(t, f.db.Where("certificate_id = ?", "CERT-1").Take(&revocation).Error)
	require.Equal(t, "fraud", revocation.Reason)
	require.Empty(t, revocation.ReinstatementAuthority)

	f.requireChainIntact(t)
}

func TestRevocationIsPermanentEvenBeforeExpiry(t *testing.T) {
	f := newFixture(t)
	f.registerAuthority(t, authorityA, domain.AuthorityIndustryBody)
	f.issue(t, "CERT-1", 365*24*time.Hour)

	require.NoError(t, f.certificates.HandleRevokeCertificate(f.ctx, RevokeCertificateCommand{
		Actor:         systemOwner,
		CertificateID: "CERT-1",
		Reason:        "recall",
	}))

	for i := 0; i < 3; i++ {
		f.clock.Advance(24 * time.Hour)
		require.False(t, certificateState(f.certificate(t, "CERT-1")).ValidAt(f.clock.Now()))
	}

	// Revoking again overwrites the record and never restores validity.
	require.NoError(t, f.certificates.HandleRevokeCertificate(f.ctx, RevokeCertificateCommand{
		Actor:         authorityA,
		CertificateID: "CERT-1",
		Reason:        "confirmed",
		IsPermanent:   true,
	}))
	require.False(t, f.certificate(t, "CERT-1").IsValid)
	require.Equal(t, int64(1), f.count(t, &models.RevocationRecord{}, ""))

	revoked, err := eventstore.CounterValue(f.db, models.CounterCertificatesRevoked)
	require.NoError(t, err)
	require.Equal(t, uint64(1), revoked)
}

func TestNonPermanentRevocationNamesOwnerForReinstatement(t *testing.T) {
	f := newFixture(t)
	f.registerAuthority(t, authorityA, domain.AuthorityIndustryBody)
	f.issue(t, "CERT-1", time.Hour)

	require.NoError(t, f.certificates.HandleRevokeCertificate(f.ctx, RevokeCertificateCommand{
		Actor:         authorityA,
		CertificateID: "CERT-1",
		Reason:        "pending audit",
	}))

	var revocation models.RevocationRecord
	require.NoError(t, f.db.Where("certificate_id = ?", "CERT-1").Take(&revocation).Error)
	require.False(t, revocation.IsPermanent)
	require.Equal(t, systemOwner, revocation.ReinstatementAuthority)
}

func TestRevokeRequiresIssuerOrOwner(t *testing.T) {
	f := newFixture(t)
	f.registerAuthority(t, authorityA, domain.AuthorityIndustryBody)
	f.issue(t, "CERT-1", time.Hour)

	err := f.certificates.HandleRevokeCertificate(f.ctx, RevokeCertificateCommand{Actor: stranger, CertificateID: "CERT-1"})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
	require.True(t, f.certificate(t, "CERT-1").IsValid)

	err = f.certificates.HandleRevokeCertificate(f.ctx, RevokeCertificateCommand{Actor: systemOwner, CertificateID: "MISSING"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestValidateExpiredCertificate(t *testing.T) {
	f := newFixture(t)
	f.registerAuthority(t, authorityA, domain.AuthorityCertifiedInspector)
	f.issue(t, "CERT-1", time.Hour)
	f.clock.Advance(time.Hour + time.Second)

	result, err := f.certificates.HandleValidateCertificate(f.ctx, ValidateCertificateCommand{
		Actor:         "retailer",
		CertificateID: "CERT-1",
	})
	require.ErrorIs(t, err, domain.ErrCertificateExpired)
	require.False(t, result.Valid)

	records := f.verificationRecords(t, "CERT-1")
	require.Len(t, records, 1)
	require.Equal(t, uint8(domain.TrustLevelInvalid), records[0].TrustLevel)
	require.False(t, records[0].Result)
	require.Equal(t, uint64(1), f.certificate(t, "CERT-1").VerificationCount)

	// Expiry is computed, never stored.
	require.True(t, f.certificate(t, "CERT-1").IsValid)
}

func TestValidateAtExactExpiryIsStillValid(t *testing.T) {
	f := newFixture(t)
	f.registerAuthority(t, authorityA, domain.AuthorityCertifiedInspector)
	f.issue(t, "CERT-1", time.Hour)
	f.clock.Advance(time.Hour)

	result, err := f.certificates.HandleValidateCertificate(f.ctx, ValidateCertificateCommand{Actor: "retailer", CertificateID: "CERT-1"})
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestRevokedTakesPrecedenceOverExpired(t *testing.T) {
	f := newFixture(t)
	f.registerAuthority(t, authorityA, domain.AuthorityCertifiedInspector)
	f.issue(t, "CERT-1", time.Minute)
	require.NoError(t, f.certificates.HandleRevokeCertificate(f.ctx, RevokeCertificateCommand{Actor: authorityA, CertificateID: "CERT-1"}))
	f.clock.Advance(time.Hour)

	_, err := f.certificates.HandleValidateCertificate(f.ctx, ValidateCertificateCommand{Actor: "retailer", CertificateID: "CERT-1"})
	require.ErrorIs(t, err, domain.ErrCertificateRevoked)
	require.Len(t, f.verificationRecords(t, "CERT-1"), 1)
}

func TestValidateMissingCertificate(t *testing.T) {
	f := newFixture(t)

	_, err := f.certificates.HandleValidateCertificate(f.ctx, ValidateCertificateCommand{Actor: "retailer", CertificateID: "NOPE"})
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Zero(t, f.count(t, &models.VerificationRecord{}, ""))
}

func TestIssueCertificateChecks(t *testing.T) {
	f := newFixture(t)

	_, err := f.certificates.HandleIssueCertificate(f.ctx, IssueCertificateCommand{
		Actor:         authorityA,
		CertificateID: "CERT-1",
		ProductID:     "PROD-1",
		ValidUntil:    f.clock.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, domain.ErrInvalidAuthority)

	f.registerAuthority(t, authorityA, domain.AuthorityRegulatoryAgency)
	_, err = f.certificates.HandleIssueCertificate(f.ctx, IssueCertificateCommand{
		Actor:         authorityA,
		CertificateID: "CERT-1",
		ProductID:     "PROD-1",
		Type:          domain.CertificateType(9),
		ValidUntil:    f.clock.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, domain.ErrInvalidCertificateType)

	f.issue(t, "CERT-1", time.Hour)
	_, err = f.certificates.HandleIssueCertificate(f.ctx, IssueCertificateCommand{
		Actor:         authorityA,
		CertificateID: "CERT-1",
		ProductID:     "PROD-2",
		ValidUntil:    f.clock.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	require.NoError(t, f.certificates.HandleSetAuthorityActive(f.ctx, SetAuthorityActiveCommand{
		Actor:     systemOwner,
		Principal: authorityA,
		IsActive:  false,
	}))
	_, err = f.certificates.HandleIssueCertificate(f.ctx, IssueCertificateCommand{
		Actor:         authorityA,
		CertificateID: "CERT-2",
		ProductID:     "PROD-1",
		ValidUntil:    f.clock.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, domain.ErrInvalidAuthority)

	var authority models.CertificateAuthority
	require.NoError(t, f.db.Where("principal = ?", authorityA).Take(&authority).Error)
	require.Equal(t, uint64(1), authority.CertificatesIssued)
	require.False(t, authority.IsActive)

	issued, err := eventstore.CounterValue(f.db, models.CounterCertificatesIssued)
	require.NoError(t, err)
	require.Equal(t, uint64(1), issued)
}

func TestIssueCertificateRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.registerAuthority(t, authorityA, domain.AuthorityGovernment)

	validUntil := epoch.Add(90 * 24 * time.Hour)
	cmd := IssueCertificateCommand{
		Actor:               authorityA,
		CertificateID:       "CERT-RT",
		ProductID:           "NOT-A-PRODUCT",
		Type:                domain.CertificateEnvironmental,
		ValidUntil:          validUntil,
		VerificationHash:    "sha256:abcdef",
		ComplianceStandards: "ISO-14001",
		CertificateData:     `{"scope":"plant","ünits":"t CO₂e"}`,
	}
	_, err := f.certificates.HandleIssueCertificate(f.ctx, cmd)
	require.NoError(t, err)

	cert := f.certificate(t, "CERT-RT")
	assert.Equal(t, cmd.ProductID, cert.ProductID)
	assert.Equal(t, uint8(cmd.Type), cert.CertificateType)
	assert.Equal(t, authorityA, cert.IssuingAuthority)
	assert.Equal(t, uint8(domain.AuthorityGovernment), cert.AuthorityLevel)
	assert.True(t, cert.ValidUntil.Equal(validUntil))
	assert.True(t, cert.IssuedAt.Equal(epoch))
	assert.Equal(t, cmd.VerificationHash, cert.VerificationHash)
	assert.Equal(t, cmd.ComplianceStandards, cert.ComplianceStandards)
	assert.Equal(t, cmd.CertificateData, cert.CertificateData)

	// The level is a snapshot; changing the authority later does not touch it.
	f.registerAuthority(t, authorityA, domain.AuthorityManufacturer)
	assert.Equal(t, uint8(domain.AuthorityGovernment), f.certificate(t, "CERT-RT").AuthorityLevel)
}

func TestRegisterAuthority(t *testing.T) {
	f := newFixture(t)

	err := f.certificates.HandleRegisterAuthority(f.ctx, RegisterAuthorityCommand{Actor: stranger, Principal: authorityA, Level: domain.AuthorityIndustryBody})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	for _, level := range []domain.AuthorityLevel{0, 6} {
		err = f.certificates.HandleRegisterAuthority(f.ctx, RegisterAuthorityCommand{Actor: systemOwner, Principal: authorityA, Level: level})
		require.ErrorIs(t, err, domain.ErrInvalidAuthority)
	}

	f.registerAuthority(t, authorityA, domain.AuthorityIndustryBody)
	var authority models.CertificateAuthority
	require.NoError(t, f.db.Where("principal = ?", authorityA).Take(&authority).Error)
	require.Equal(t, uint8(domain.InitialTrustScore), authority.TrustScore)
	require.Zero(t, authority.CertificatesIssued)
	require.True(t, authority.IsActive)

	err = f.certificates.HandleSetAuthorityActive(f.ctx, SetAuthorityActiveCommand{Actor: systemOwner, Principal: "nobody"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentRegistrySerializes(t *testing.T) {
	f := newFixture(t)

	const rounds = 6
	var g errgroup.Group
	for i := 0; i < rounds; i++ {
		active := i%2 == 0
		g.Go(func() error {
			return f.certificates.HandleRegisterAuthority(f.ctx, RegisterAuthorityCommand{
				Actor:     systemOwner,
				Principal: authorityA,
				Name:      "Lab A",
				Level:     domain.AuthorityIndustryBody,
			})
		})
		g.Go(func() error {
			return f.certificates.HandleRegisterComplianceStandard(f.ctx, RegisterComplianceStandardCommand{
				Actor:      systemOwner,
				StandardID: "EU-ORGANIC",
				Name:       "EU Organic",
				IsActive:   active,
			})
		})
	}
	require.NoError(t, g.Wait())

	for _, record := range []struct{ kind, id string }{
		{domain.AuthorityAggregateType, authorityA},
		{domain.StandardAggregateType, "EU-ORGANIC"},
	} {
		events, err := f.store.GetEvents(f.ctx, record.kind, record.id)
		require.NoError(t, err)
		require.Len(t, events, rounds, record.kind)
		require.Equal(t, rounds, events[rounds-1].Version)
	}
	f.requireChainIntact(t)
}

func TestBulkIssue(t *testing.T) {
	f := newFixture(t)
	f.registerAuthority(t, authorityA, domain.AuthorityIndustryBody)
	until := f.clock.Now().Add(time.Hour)

	items := []IssueCertificateCommand{
		{CertificateID: "B-1", ProductID: "PROD-1", ValidUntil: until},
		{CertificateID: "B-2", ProductID: "PROD-2", ValidUntil: until, Type: domain.CertificateFairTrade},
	}
	ids, err := f.certificates.HandleBulkIssue(f.ctx, authorityA, items)
	require.NoError(t, err)
	require.Equal(t, []string{"B-1", "B-2"}, ids)
	for _, item := range items {
		require.Empty(t, item.Actor, "caller's batch must not be modified")
	}
	require.Equal(t, authorityA, f.certificate(t, "B-2").IssuingAuthority)

	// The second item fails, so nothing from this batch is written.
	_, err = f.certificates.HandleBulkIssue(f.ctx, authorityA, []IssueCertificateCommand{
		{CertificateID: "B-3", ProductID: "PROD-1", ValidUntil: until},
		{CertificateID: "B-1", ProductID: "PROD-1", ValidUntil: until},
	})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
	require.Contains(t, err.Error(), "item 1")
	require.Equal(t, int64(2), f.count(t, &models.Certificate{}, ""))

	_, err = f.certificates.HandleBulkIssue(f.ctx, authorityA, []IssueCertificateCommand{
		{CertificateID: "B-4", ProductID: "PROD-1", ValidUntil: until},
		{CertificateID: "B-4", ProductID: "PROD-1", ValidUntil: until},
	})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	// The fixture caps batches at three.
	_, err = f.certificates.HandleBulkIssue(f.ctx, authorityA, make([]IssueCertificateCommand, 4))
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	_, err = f.certificates.HandleBulkIssue(f.ctx, authorityA, nil)
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	var authority models.CertificateAuthority
	require.NoError(t, f.db.Where("principal = ?", authorityA).Take(&authority).Error)
	require.Equal(t, uint64(2), authority.CertificatesIssued)
}

func TestCheckCompliance(t *testing.T) {
	f := newFixture(t)
	f.registerAuthority(t, authorityA, domain.AuthorityIndustryBody)
	f.issue(t, "CERT-1", time.Hour)

	require.NoError(t, f.certificates.HandleRegisterComplianceStandard(f.ctx, RegisterComplianceStandardCommand{
		Actor:                    systemOwner,
		StandardID:               "EU-ORG-2018",
		Name:                     "EU organic",
		RequiredCertificateTypes: []domain.CertificateType{domain.CertificateOrganic},
		IsActive:                 true,
	}))
	require.NoError(t, f.certificates.HandleRegisterComplianceStandard(f.ctx, RegisterComplianceStandardCommand{
		Actor:                    systemOwner,
		StandardID:               "FT-1",
		RequiredCertificateTypes: []domain.CertificateType{domain.CertificateFairTrade},
		IsActive:                 true,
	}))
	require.NoError(t, f.certificates.HandleRegisterComplianceStandard(f.ctx, RegisterComplianceStandardCommand{
		Actor:      systemOwner,
		StandardID: "USDA-NOP",
	}))

	ok, err := f.certificates.CheckCompliance(f.ctx, "CERT-1", "EU-ORG-2018")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.certificates.CheckCompliance(f.ctx, "CERT-1", "FT-1")
	require.ErrorIs(t, err, domain.ErrComplianceCheckFailed)

	_, err = f.certificates.CheckCompliance(f.ctx, "CERT-1", "USDA-NOP")
	require.ErrorIs(t, err, domain.ErrComplianceCheckFailed, "inactive standard")

	_, err = f.certificates.CheckCompliance(f.ctx, "CERT-1", "MISSING")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.certificates.CheckCompliance(f.ctx, "MISSING", "EU-ORG-2018")
	require.ErrorIs(t, err, domain.ErrNotFound)

	f.clock.Advance(2 * time.Hour)
	_, err = f.certificates.CheckCompliance(f.ctx, "CERT-1", "EU-ORG-2018")
	require.ErrorIs(t, err, domain.ErrComplianceCheckFailed)

	// Read only: nothing was recorded.
	require.Zero(t, f.count(t, &models.VerificationRecord{}, ""))

	err = f.certificates.HandleRegisterComplianceStandard(f.ctx, RegisterComplianceStandardCommand{
		Actor:                    systemOwner,
		StandardID:               "BAD",
		RequiredCertificateTypes: []domain.CertificateType{42},
	})
	require.ErrorIs(t, err, domain.ErrInvalidCertificateType)
}

func TestCertificateTypeListRoundTrip(t *testing.T) {
	types := []domain.CertificateType{domain.CertificateOrigin, domain.CertificateSafetyCompliance}
	parsed, err := SplitCertificateTypes(JoinCertificateTypes(types))
	require.NoError(t, err)
	require.Equal(t, types, parsed)

	parsed, err = SplitCertificateTypes("")
	require.NoError(t, err)
	require.Empty(t, parsed)
}
