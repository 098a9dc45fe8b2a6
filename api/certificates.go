package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/provenance/handlers"
)

// BulkIssueRequest carries the certificates of one bulk issue
type BulkIssueRequest struct {
	Certificates []handlers.IssueCertificateCommand `json:"certificates"`
}

// AuthorityActiveRequest toggles an authority
type AuthorityActiveRequest struct {
	IsActive bool `json:"is_active"`
}

func (s *Server) registerAuthority(c *gin.Context) {
	var cmd handlers.RegisterAuthorityCommand
	if err := bindJSON(c, &cmd); err != nil {
		respondError(c, err)
		return
	}
	cmd.Actor = principal(c)

	if err := s.deps.Certificates.HandleRegisterAuthority(c, cmd); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"principal": cmd.Principal})
}

func (s *Server) setAuthorityActive(c *gin.Context) {
	var req AuthorityActiveRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	err := s.deps.Certificates.HandleSetAuthorityActive(c, handlers.SetAuthorityActiveCommand{
		Actor:     principal(c),
		Principal: c.Param("principal"),
		IsActive:  req.IsActive,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": c.Param("principal"), "is_active": req.IsActive})
}

func (s *Server) getAuthority(c *gin.Context) {
	authority, err := s.deps.Queries.GetAuthorityInfo(c, c.Param("principal"))
	if err != nil {
		respondError(c, err)
		return
	}
	if authority == nil {
		respondNotFound(c, "authority")
		return
	}
	c.JSON(http.StatusOK, authority)
}

func (s *Server) registerStandard(c *gin.Context) {
	var cmd handlers.RegisterComplianceStandardCommand
	if err := bindJSON(c, &cmd); err != nil {
		respondError(c, err)
		return
	}
	cmd.Actor = principal(c)

	if err := s.deps.Certificates.HandleRegisterComplianceStandard(c, cmd); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"standard_id": cmd.StandardID})
}

func (s *Server) getStandard(c *gin.Context) {
	standard, err := s.deps.Queries.GetComplianceStandard(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if standard == nil {
		respondNotFound(c, "compliance standard")
		return
	}
	c.JSON(http.StatusOK, standard)
}

func (s *Server) issueCertificate(c *gin.Context) {
	var cmd handlers.IssueCertificateCommand
	if err := bindJSON(c, &cmd); err != nil {
		respondError(c, err)
		return
	}
	cmd.Actor = principal(c)

	certificateID, err := s.deps.Certificates.HandleIssueCertificate(c, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"certificate_id": certificateID})
}

func (s *Server) bulkIssueCertificates(c *gin.Context) {
	var req BulkIssueRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	ids, err := s.deps.Certificates.HandleBulkIssue(c, principal(c), req.Certificates)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"certificate_ids": ids})
}

func (s *Server) getCertificate(c *gin.Context) {
	certificate, err := s.deps.Queries.GetCertificate(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, certificate)
}

// validateCertificate answers 422 for an invalid certificate but still
// returns the recorded verification alongside the error.
func (s *Server) validateCertificate(c *gin.Context) {
	var cmd handlers.ValidateCertificateCommand
	if err := bindJSON(c, &cmd); err != nil {
		respondError(c, err)
		return
	}
	cmd.Actor, cmd.CertificateID = principal(c), c.Param("id")

	result, err := s.deps.Certificates.HandleValidateCertificate(c, cmd)
	if err != nil {
		if result.VerificationID == 0 {
			respondError(c, err)
			return
		}
		status, code := statusOf(err)
		c.JSON(status, gin.H{"error": err.Error(), "code": code, "verification": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) revokeCertificate(c *gin.Context) {
	var cmd handlers.RevokeCertificateCommand
	if err := bindJSON(c, &cmd); err != nil {
		respondError(c, err)
		return
	}
	cmd.Actor, cmd.CertificateID = principal(c), c.Param("id")

	if err := s.deps.Certificates.HandleRevokeCertificate(c, cmd); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"certificate_id": cmd.CertificateID, "is_revoked": true})
}

func (s *Server) isCertificateValid(c *gin.Context) {
	valid, err := s.deps.Queries.IsCertificateValid(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"certificate_id": c.Param("id"), "valid": valid})
}

func (s *Server) getCertificateSummary(c *gin.Context) {
	summary, err := s.deps.Queries.GetCertificateSummary(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) getVerificationHistory(c *gin.Context) {
	records, err := s.deps.Queries.GetVerificationHistory(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) getRevocationRecord(c *gin.Context) {
	record, err := s.deps.Queries.GetRevocationRecord(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if record == nil {
		respondNotFound(c, "revocation record")
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) checkCompliance(c *gin.Context) {
	ok, err := s.deps.Certificates.CheckCompliance(c, c.Param("id"), c.Param("standardId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"certificate_id": c.Param("id"), "standard_id": c.Param("standardId"), "compliant": ok})
}

func (s *Server) replayCertificate(c *gin.Context) {
	report, err := s.deps.Auditor.ReplayCertificate(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.deps.Queries.GetSystemStats(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) searchProducts(c *gin.Context) {
	s.search(c, s.deps.Queries.SearchProducts)
}

func (s *Server) searchCertificates(c *gin.Context) {
	s.search(c, s.deps.Queries.SearchCertificates)
}

func (s *Server) search(c *gin.Context, run func(ctx context.Context, text string, from, size int) ([]map[string]interface{}, error)) {
	from, err := intQuery(c, "from")
	if err != nil {
		respondError(c, err)
		return
	}
	size, err := intQuery(c, "size")
	if err != nil {
		respondError(c, err)
		return
	}

	hits, err := run(c, c.Query("q"), from, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits, "count": len(hits)})
}
