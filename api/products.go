package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/handlers"
)

// StatusRequest names the new status of a product
type StatusRequest struct {
	Status   string `json:"status"`
	Metadata string `json:"metadata"`
}

func (s *Server) grantRole(c *gin.Context) {
	var cmd handlers.GrantRoleCommand
	if err := bindJSON(c, &cmd); err != nil {
		respondError(c, err)
		return
	}
	cmd.Actor = principal(c)

	if err := s.deps.Auth.HandleGrantRole(c, cmd); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": cmd.Principal, "role": cmd.Role, "is_authorized": cmd.IsAuthorized})
}

func (s *Server) getAuthorization(c *gin.Context) {
	authorized, err := s.deps.Auth.IsAuthorized(c, c.Param("principal"), c.Param("role"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": c.Param("principal"), "role": c.Param("role"), "is_authorized": authorized})
}

func (s *Server) listGrants(c *gin.Context) {
	grants, err := s.deps.Auth.ListGrants(c, c.Param("principal"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, grants)
}

func (s *Server) registerProduct(c *gin.Context) {
	var cmd handlers.RegisterProductCommand
	if err := bindJSON(c, &cmd); err != nil {
		respondError(c, err)
		return
	}
	cmd.Actor = principal(c)

	productID, err := s.deps.Products.HandleRegisterProduct(c, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product_id": productID})
}

func (s *Server) updateLocation(c *gin.Context) {
	var cmd handlers.UpdateLocationCommand
	if err := bindJSON(c, &cmd); err != nil {
		respondError(c, err)
		return
	}
	cmd.Actor, cmd.ProductID = principal(c), c.Param("id")

	locationID, err := s.deps.Products.HandleUpdateLocation(c, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product_id": cmd.ProductID, "location_id": locationID})
}

func (s *Server) transferCustody(c *gin.Context) {
	var cmd handlers.TransferCustodyCommand
	if err := bindJSON(c, &cmd); err != nil {
		respondError(c, err)
		return
	}
	cmd.Actor, cmd.ProductID = principal(c), c.Param("id")

	transferID, err := s.deps.Products.HandleTransferCustody(c, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product_id": cmd.ProductID, "transfer_id": transferID})
}

func (s *Server) addQualityCheck(c *gin.Context) {
	var cmd handlers.AddQualityCheckCommand
	if err := bindJSON(c, &cmd); err != nil {
		respondError(c, err)
		return
	}
	cmd.Actor, cmd.ProductID = principal(c), c.Param("id")

	checkID, err := s.deps.Products.HandleAddQualityCheck(c, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product_id": cmd.ProductID, "check_id": checkID})
}

func (s *Server) updateStatus(c *gin.Context) {
	var req StatusRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	status, err := domain.ParseProductStatus(req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	eventID, err := s.deps.Products.HandleUpdateStatus(c, handlers.UpdateStatusCommand{
		Actor:     principal(c),
		ProductID: c.Param("id"),
		Status:    status,
		Metadata:  req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": c.Param("id"), "status": status.String(), "event_id": eventID})
}

func (s *Server) deactivateProduct(c *gin.Context) {
	err := s.deps.Products.HandleDeactivateProduct(c, handlers.DeactivateProductCommand{
		Actor:     principal(c),
		ProductID: c.Param("id"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": c.Param("id"), "is_active": false})
}

func (s *Server) getProduct(c *gin.Context) {
	product, err := s.deps.Queries.GetProduct(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (s *Server) getStatus(c *gin.Context) {
	status, err := s.deps.Queries.GetStatus(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": c.Param("id"), "status": status.String(), "status_code": uint8(status)})
}

func (s *Server) getOwner(c *gin.Context) {
	owner, err := s.deps.Queries.GetOwner(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": c.Param("id"), "owner": owner})
}

func (s *Server) getSummary(c *gin.Context) {
	summary, err := s.deps.Queries.GetSummary(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) listEvents(c *gin.Context) {
	offset, err := intQuery(c, "offset")
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}

	events, err := s.deps.Queries.ListProductEvents(c, c.Param("id"), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) getEvent(c *gin.Context) {
	eventID, err := uintParam(c, "eventId")
	if err != nil {
		respondError(c, err)
		return
	}
	event, err := s.deps.Queries.GetEvent(c, c.Param("id"), eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	if event == nil {
		respondNotFound(c, "event")
		return
	}
	c.JSON(http.StatusOK, event)
}

func (s *Server) listQualityChecks(c *gin.Context) {
	checks, err := s.deps.Queries.ListQualityChecks(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, checks)
}

func (s *Server) getQualityCheck(c *gin.Context) {
	checkID, err := uintParam(c, "checkId")
	if err != nil {
		respondError(c, err)
		return
	}
	check, err := s.deps.Queries.GetQualityCheck(c, c.Param("id"), checkID)
	if err != nil {
		respondError(c, err)
		return
	}
	if check == nil {
		respondNotFound(c, "quality check")
		return
	}
	c.JSON(http.StatusOK, check)
}

func (s *Server) listLocations(c *gin.Context) {
	updates, err := s.deps.Queries.ListLocationHistory(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updates)
}

func (s *Server) getLocation(c *gin.Context) {
	locationID, err := uintParam(c, "locationId")
	if err != nil {
		respondError(c, err)
		return
	}
	update, err := s.deps.Queries.GetLocationUpdate(c, c.Param("id"), locationID)
	if err != nil {
		respondError(c, err)
		return
	}
	if update == nil {
		respondNotFound(c, "location update")
		return
	}
	c.JSON(http.StatusOK, update)
}

func (s *Server) listCustody(c *gin.Context) {
	records, err := s.deps.Queries.ListCustodyHistory(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) getCustodyTransfer(c *gin.Context) {
	transferID, err := uintParam(c, "transferId")
	if err != nil {
		respondError(c, err)
		return
	}
	record, err := s.deps.Queries.GetCustodyTransfer(c, c.Param("id"), transferID)
	if err != nil {
		respondError(c, err)
		return
	}
	if record == nil {
		respondNotFound(c, "custody transfer")
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) listProductCertificates(c *gin.Context) {
	certificates, err := s.deps.Queries.ListCertificatesForProduct(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, certificates)
}

func (s *Server) replayProduct(c *gin.Context) {
	report, err := s.deps.Auditor.ReplayProduct(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
