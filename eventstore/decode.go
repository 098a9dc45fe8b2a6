package eventstore

import (
	"encoding/json"

	"github.com/pkg/errors"

	"example.com/backstage/services/provenance/domain"
)

// DecodeEvent unmarshals a stored payload into its event struct
func DecodeEvent(eventType string, payload []byte) (interface{}, error) {
	switch eventType {
	case domain.RoleGranted:
		return decode[domain.RoleGrantedEvent](payload)

	// Product events
	case domain.ProductRegistered:
		return decode[domain.ProductRegisteredEvent](payload)
	case domain.ProductLocationUpdated:
		return decode[domain.ProductLocationUpdatedEvent](payload)
	case domain.ProductCustodyTransferred:
		return decode[domain.ProductCustodyTransferredEvent](payload)
	case domain.ProductQualityChecked:
		return decode[domain.ProductQualityCheckedEvent](payload)
	case domain.ProductStatusUpdated:
		return decode[domain.ProductStatusUpdatedEvent](payload)
	case domain.ProductDeactivated:
		return decode[domain.ProductDeactivatedEvent](payload)

	// Authority and standard events
	case domain.AuthorityRegistered:
		return decode[domain.AuthorityRegisteredEvent](payload)
	case domain.AuthorityActivationChanged:
		return decode[domain.AuthorityActivationChangedEvent](payload)
	case domain.ComplianceStandardRegistered:
		return decode[domain.ComplianceStandardRegisteredEvent](payload)

	// Certificate events
	case domain.CertificateIssued:
		return decode[domain.CertificateIssuedEvent](payload)
	case domain.CertificateVerified:
		return decode[domain.CertificateVerifiedEvent](payload)
	case domain.CertificateRevoked:
		return decode[domain.CertificateRevokedEvent](payload)

	default:
		return nil, errors.Errorf("unknown event type: %s", eventType)
	}
}

func decode[T any](payload []byte) (interface{}, error) {
	var data T
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal event data")
	}
	return data, nil
}
