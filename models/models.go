package models

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// All lists every table owned by the service
func All() []interface{} {
	return []interface{}{
		&Counter{},
		&LedgerEntry{},
		&Anchor{},
		&AuthorizationGrant{},
		&Product{},
		&ProductEvent{},
		&QualityCheck{},
		&LocationUpdate{},
		&CustodyRecord{},
		&Certificate{},
		&CertificateAuthority{},
		&VerificationRecord{},
		&RevocationRecord{},
		&ComplianceStandard{},
	}
}

// SetupModels migrates every table and seeds the counters
func SetupModels(db *gorm.DB) error {
	if err := db.AutoMigrate(All()...); err != nil {
		return errors.Wrap(err, "failed to migrate tables")
	}

	for _, name := range CounterNames {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Counter{Name: name}).Error; err != nil {
			return errors.Wrapf(err, "failed to seed counter %s", name)
		}
	}

	return nil
}
