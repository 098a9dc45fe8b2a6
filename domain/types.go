package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ProductStatus is the lifecycle status of a product. Any value may follow any other.
type ProductStatus uint8

const (
	StatusRegistered ProductStatus = iota
	StatusInProduction
	StatusQualityChecked
	StatusInTransit
	StatusDelivered
	StatusRecalled
)

var productStatusNames = []string{"Registered", "InProduction", "QualityChecked", "InTransit", "Delivered", "Recalled"}

func (s ProductStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("ProductStatus(%d)", uint8(s))
	}
	return productStatusNames[s]
}

// Valid reports whether s is inside the defined range
func (s ProductStatus) Valid() bool {
	return int(s) < len(productStatusNames)
}

// ParseProductStatus parses a status by name, case-insensitively
func ParseProductStatus(name string) (ProductStatus, error) {
	for i, n := range productStatusNames {
		if strings.EqualFold(n, name) {
			return ProductStatus(i), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidStatus, "unknown status %q", name)
}

// ProductEventType classifies rows in a product's event stream
type ProductEventType uint8

const (
	EventRegistration ProductEventType = iota
	EventLocationUpdate
	EventCustodyTransfer
	EventQualityCheck
	EventStatusUpdate
)

var productEventTypeNames = []string{"Registration", "LocationUpdate", "CustodyTransfer", "QualityCheck", "StatusUpdate"}

func (t ProductEventType) String() string {
	if int(t) >= len(productEventTypeNames) {
		return fmt.Sprintf("ProductEventType(%d)", uint8(t))
	}
	return productEventTypeNames[t]
}

// CertificateType is the kind of claim a certificate makes
type CertificateType uint8

const (
	CertificateOrganic CertificateType = iota
	CertificateFairTrade
	CertificateQualityAssurance
	CertificateSafetyCompliance
	CertificateOrigin
	CertificateEnvironmental
)

var certificateTypeNames = []string{"Organic", "FairTrade", "QualityAssurance", "SafetyCompliance", "Origin", "Environmental"}

func (t CertificateType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("CertificateType(%d)", uint8(t))
	}
	return certificateTypeNames[t]
}

// Valid reports whether t is inside the defined range
func (t CertificateType) Valid() bool {
	return int(t) < len(certificateTypeNames)
}

// ParseCertificateType parses a certificate type by name
func ParseCertificateType(name string) (CertificateType, error) {
	for i, n := range certificateTypeNames {
		if strings.EqualFold(n, name) {
			return CertificateType(i), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidCertificateType, "unknown certificate type %q", name)
}

// AuthorityLevel ranks certificate authorities from manufacturer (1) to government (5)
type AuthorityLevel uint8

const (
	AuthorityManufacturer AuthorityLevel = iota + 1
	AuthorityCertifiedInspector
	AuthorityIndustryBody
	AuthorityRegulatoryAgency
	AuthorityGovernment
)

var authorityLevelNames = map[AuthorityLevel]string{
	AuthorityManufacturer:       "Manufacturer",
	AuthorityCertifiedInspector: "CertifiedInspector",
	AuthorityIndustryBody:       "IndustryBody",
	AuthorityRegulatoryAgency:   "RegulatoryAgency",
	AuthorityGovernment:         "Government",
}

func (l AuthorityLevel) String() string {
	if name, ok := authorityLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("AuthorityLevel(%d)", uint8(l))
}

// Valid reports whether l is inside 1..5
func (l AuthorityLevel) Valid() bool {
	return l >= AuthorityManufacturer && l <= AuthorityGovernment
}

// Roles that can be granted in the authorization registry
const (
	RoleManufacturer         = "manufacturer"
	RoleLogistics            = "logistics"
	RoleQualityInspector     = "quality_inspector"
	RoleStatusUpdater        = "status_updater"
	RoleCertificateAuthority = "certificate_authority"
)

// Roles lists every grantable role
var Roles = []string{
	RoleManufacturer,
	RoleLogistics,
	RoleQualityInspector,
	RoleStatusUpdater,
	RoleCertificateAuthority,
}

// IsKnownRole reports whether role is one of Roles
func IsKnownRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Trust levels recorded on verification records
const (
	TrustLevelValid   = 100
	TrustLevelInvalid = 0
	InitialTrustScore = 100
)
