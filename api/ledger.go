package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/integrity"
)

func (s *Server) listLedgerEntries(c *gin.Context) {
	from, err := uintQuery(c, "from")
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}

	entries, err := s.deps.Queries.ListLedgerEntries(c, from, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) getLedgerEntry(c *gin.Context) {
	sequence, err := uintParam(c, "sequence")
	if err != nil {
		respondError(c, err)
		return
	}
	entry, err := s.deps.Queries.GetLedgerEntry(c, sequence)
	if err != nil {
		respondError(c, err)
		return
	}
	if entry == nil {
		respondNotFound(c, "ledger entry")
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) getInclusionProof(c *gin.Context) {
	sequence, err := uintParam(c, "sequence")
	if err != nil {
		respondError(c, err)
		return
	}
	proof, err := s.deps.Anchorer.InclusionProof(c, sequence)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proof": proof, "verified": integrity.VerifyInclusion(*proof)})
}

func (s *Server) verifyChain(c *gin.Context) {
	from, err := uintQuery(c, "from")
	if err != nil {
		respondError(c, err)
		return
	}
	to, err := uintQuery(c, "to")
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := s.deps.Chain.VerifyChain(c, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	s.deps.Metrics.SetHealth("ledger_chain", report.Intact)
	c.JSON(http.StatusOK, report)
}

// createAnchor seals the ledger tail on demand. Only the owner may trigger it.
func (s *Server) createAnchor(c *gin.Context) {
	if !s.deps.Auth.IsOwner(principal(c)) {
		respondError(c, errors.Wrapf(domain.ErrNotAuthorized, "%s may not create anchors", principal(c)))
		return
	}

	anchor, err := s.deps.Anchorer.CreateAnchor(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if anchor == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusCreated, anchor)
}

func (s *Server) getLatestAnchor(c *gin.Context) {
	anchor, err := s.deps.Queries.LatestAnchor(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if anchor == nil {
		respondNotFound(c, "anchor")
		return
	}
	c.JSON(http.StatusOK, anchor)
}

func (s *Server) getAnchor(c *gin.Context) {
	anchorID, err := uintParam(c, "anchorId")
	if err != nil {
		respondError(c, err)
		return
	}
	anchor, err := s.deps.Queries.GetAnchor(c, anchorID)
	if err != nil {
		respondError(c, err)
		return
	}
	if anchor == nil {
		respondNotFound(c, "anchor")
		return
	}
	c.JSON(http.StatusOK, anchor)
}

func (s *Server) verifyAnchor(c *gin.Context) {
	anchorID, err := uintParam(c, "anchorId")
	if err != nil {
		respondError(c, err)
		return
	}
	report, err := s.deps.Anchorer.VerifyAnchor(c, anchorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
