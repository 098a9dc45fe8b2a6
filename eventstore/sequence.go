package eventstore

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/models"
)

// NextSequence increments a global counter inside tx and returns the new
// value. The UPDATE holds the counter's row lock until tx ends, so two
// committed writers never share a value and the sequence has no gaps.
func NextSequence(tx *gorm.DB, name string) (uint64, error) {
	return IncrementCounter(tx, name, 1)
}

// IncrementCounter adds delta to a counter inside tx
func IncrementCounter(tx *gorm.DB, name string, delta uint64) (uint64, error) {
	res := tx.Model(&models.Counter{}).
		Where("name = ?", name).
		UpdateColumn("value", gorm.Expr("value + ?", delta))
	if res.Error != nil {
		return 0, errors.Wrapf(res.Error, "failed to increment counter %s", name)
	}
	if res.RowsAffected == 0 {
		return 0, errors.Errorf("counter %s is not seeded", name)
	}

	var counter models.Counter
	if err := tx.Where("name = ?", name).Take(&counter).Error; err != nil {
		return 0, errors.Wrapf(err, "failed to read counter %s", name)
	}

	return counter.Value, nil
}

// CounterValue reads a counter without modifying it
func CounterValue(db *gorm.DB, name string) (uint64, error) {
	var counter models.Counter
	if err := db.Where("name = ?", name).Take(&counter).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "failed to read counter %s", name)
	}
	return counter.Value, nil
}
