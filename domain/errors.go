package domain

import (
	"github.com/pkg/errors"
)

// Error kinds returned by every ledger operation. Callers branch on these
// with errors.Is; the subject-specific errors below wrap them.
var (
	ErrNotAuthorized          = errors.New("not authorized")
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrInvalidLocation        = errors.New("invalid location")
	ErrInvalidAuthority       = errors.New("invalid authority")
	ErrInvalidCertificateType = errors.New("invalid certificate type")
	ErrCertificateExpired     = errors.New("certificate expired")
	ErrCertificateRevoked     = errors.New("certificate revoked")
	ErrComplianceCheckFailed  = errors.New("compliance check failed")
	ErrValidationFailed       = errors.New("validation failed")
)

var (
	ErrProductNotFound     = errors.WithMessage(ErrNotFound, "product")
	ErrProductExists       = errors.WithMessage(ErrAlreadyExists, "product")
	ErrCertificateNotFound = errors.WithMessage(ErrNotFound, "certificate")
	ErrCertificateExists   = errors.WithMessage(ErrAlreadyExists, "certificate")
	ErrStandardNotFound    = errors.WithMessage(ErrNotFound, "compliance standard")
	ErrAuthorityNotFound   = errors.WithMessage(ErrNotFound, "certificate authority")
	ErrAnchorNotFound      = errors.WithMessage(ErrNotFound, "anchor")
	ErrEntryNotFound       = errors.WithMessage(ErrNotFound, "ledger entry")
)

// Kind is the stable code of an error in the taxonomy
type Kind string

const (
	KindNotAuthorized          Kind = "NOT_AUTHORIZED"
	KindNotFound               Kind = "NOT_FOUND"
	KindAlreadyExists          Kind = "ALREADY_EXISTS"
	KindInvalidStatus          Kind = "INVALID_STATUS"
	KindInvalidLocation        Kind = "INVALID_LOCATION"
	KindInvalidAuthority       Kind = "INVALID_AUTHORITY"
	KindInvalidCertificateType Kind = "INVALID_CERTIFICATE_TYPE"
	KindCertificateExpired     Kind = "CERTIFICATE_EXPIRED"
	KindCertificateRevoked     Kind = "CERTIFICATE_REVOKED"
	KindComplianceCheckFailed  Kind = "COMPLIANCE_CHECK_FAILED"
	KindValidationFailed       Kind = "VALIDATION_FAILED"
	KindInternal               Kind = "INTERNAL_ERROR"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotAuthorized, KindNotAuthorized},
	{ErrNotFound, KindNotFound},
	{ErrAlreadyExists, KindAlreadyExists},
	{ErrInvalidStatus, KindInvalidStatus},
	{ErrInvalidLocation, KindInvalidLocation},
	{ErrInvalidAuthority, KindInvalidAuthority},
	{ErrInvalidCertificateType, KindInvalidCertificateType},
	{ErrCertificateExpired, KindCertificateExpired},
	{ErrCertificateRevoked, KindCertificateRevoked},
	{ErrComplianceCheckFailed, KindComplianceCheckFailed},
	{ErrValidationFailed, KindValidationFailed},
}

// KindOf maps err onto the taxonomy. Anything outside it is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsDomainError reports whether err belongs to the taxonomy
func IsDomainError(err error) bool {
	k := KindOf(err)
	return k != "" && k != KindInternal
}

// Validation wraps a validation message as ErrValidationFailed
func Validation(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValidationFailed, format, args...)
}
