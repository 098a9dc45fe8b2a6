package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/handlers"
)

var statusByKind = map[domain.Kind]int{
	domain.KindNotAuthorized:          http.StatusForbidden,
	domain.KindNotFound:               http.StatusNotFound,
	domain.KindAlreadyExists:          http.StatusConflict,
	domain.KindInvalidStatus:          http.StatusBadRequest,
	domain.KindInvalidLocation:        http.StatusBadRequest,
	domain.KindInvalidAuthority:       http.StatusBadRequest,
	domain.KindInvalidCertificateType: http.StatusBadRequest,
	domain.KindValidationFailed:       http.StatusBadRequest,
	domain.KindCertificateExpired:     http.StatusUnprocessableEntity,
	domain.KindCertificateRevoked:     http.StatusUnprocessableEntity,
	domain.KindComplianceCheckFailed:  http.StatusUnprocessableEntity,
}

// statusOf maps an error onto an HTTP status and a stable code
func statusOf(err error) (int, string) {
	if errors.Is(err, handlers.ErrConcurrentUpdate) {
		return http.StatusConflict, "CONCURRENT_UPDATE"
	}
	kind := domain.KindOf(err)
	if status, ok := statusByKind[kind]; ok {
		return status, string(kind)
	}
	return http.StatusInternalServerError, string(domain.KindInternal)
}

func respondError(c *gin.Context, err error) {
	status, code := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		if txn := nrgin.Transaction(c); txn != nil {
			txn.NoticeError(err)
		}
		message = "internal error"
	}
	c.JSON(status, gin.H{"error": message, "code": code})
}

func respondNotFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{"error": what + " not found", "code": string(domain.KindNotFound)})
}

// bindJSON decodes an optional request body. An empty body leaves dest untouched.
func bindJSON(c *gin.Context, dest interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		return domain.Validation("invalid request body: %v", err)
	}
	return nil
}

func uintParam(c *gin.Context, name string) (uint64, error) {
	value, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0, domain.Validation("%s must be a positive integer", name)
	}
	return value, nil
}

func uintQuery(c *gin.Context, name string) (uint64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, domain.Validation("%s must be a positive integer", name)
	}
	return value, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Validation("%s must be an integer", name)
	}
	return value, nil
}
