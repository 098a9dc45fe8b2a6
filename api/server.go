package api

import (
	"context"
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/provenance/config"
	"example.com/backstage/services/provenance/handlers"
	"example.com/backstage/services/provenance/integrity"
	"example.com/backstage/services/provenance/internal/metrics"
	"example.com/backstage/services/provenance/internal/tracing"
	"example.com/backstage/services/provenance/queries"
)

// Dependencies are the services the HTTP API exposes
type Dependencies struct {
	Auth         *handlers.AuthorizationHandler
	Products     *handlers.ProductHandler
	Certificates *handlers.CertificateHandler
	Queries      *queries.QueryService
	Chain        *integrity.ChainVerifier
	Anchorer     *integrity.Anchorer
	Auditor      *integrity.Auditor
	Metrics      *metrics.Metrics
	Tracer       tracing.Tracer
}

// Server is the HTTP server for the API
type Server struct {
	cfg        config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	deps       Dependencies
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	server := &Server{
		cfg:    cfg,
		router: gin.New(),
		deps:   deps,
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      server.router,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}

	return server
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(RequestIDMiddleware())
	if s.cfg.CorsEnabled {
		s.router.Use(CORSMiddleware(s.cfg))
	}
	if s.deps.Tracer != nil {
		if app := s.deps.Tracer.Application(); app != nil {
			s.router.Use(nrgin.Middleware(app))
		}
	}
	s.router.Use(PrincipalMiddleware())
	s.router.Use(LoggingMiddleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	s.router.GET("/metrics", s.getMetrics)
	s.router.GET("/health", s.getHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(ValidatePathIDs())
	write := RequirePrincipal()

	authorizations := v1.Group("/authorizations")
	{
		authorizations.POST("", write, s.grantRole)
		authorizations.GET("/:principal", s.listGrants)
		authorizations.GET("/:principal/:role", s.getAuthorization)
	}

	products := v1.Group("/products")
	{
		products.POST("", write, s.registerProduct)
		products.GET("/:id", s.getProduct)
		products.DELETE("/:id", write, s.deactivateProduct)
		products.POST("/:id/locations", write, s.updateLocation)
		products.POST("/:id/custody", write, s.transferCustody)
		products.POST("/:id/quality-checks", write, s.addQualityCheck)
		products.PUT("/:id/status", write, s.updateStatus)

		products.GET("/:id/status", s.getStatus)
		products.GET("/:id/owner", s.getOwner)
		products.GET("/:id/summary", s.getSummary)
		products.GET("/:id/events", s.listEvents)
		products.GET("/:id/events/:eventId", s.getEvent)
		products.GET("/:id/quality-checks", s.listQualityChecks)
		products.GET("/:id/quality-checks/:checkId", s.getQualityCheck)
		products.GET("/:id/locations", s.listLocations)
		products.GET("/:id/locations/:locationId", s.getLocation)
		products.GET("/:id/custody", s.listCustody)
		products.GET("/:id/custody/:transferId", s.getCustodyTransfer)
		products.GET("/:id/certificates", s.listProductCertificates)
		products.GET("/:id/replay", s.replayProduct)
	}

	authorities := v1.Group("/authorities")
	{
		authorities.POST("", write, s.registerAuthority)
		authorities.PUT("/:principal/active", write, s.setAuthorityActive)
		authorities.GET("/:principal", s.getAuthority)
	}

	standards := v1.Group("/standards")
	{
		standards.POST("", write, s.registerStandard)
		standards.GET("/:id", s.getStandard)
	}

	certificates := v1.Group("/certificates")
	{
		certificates.POST("", write, s.issueCertificate)
		certificates.POST("/bulk", write, s.bulkIssueCertificates)
		certificates.GET("/:id", s.getCertificate)
		certificates.POST("/:id/validate", write, s.validateCertificate)
		certificates.POST("/:id/revoke", write, s.revokeCertificate)
		certificates.GET("/:id/valid", s.isCertificateValid)
		certificates.GET("/:id/summary", s.getCertificateSummary)
		certificates.GET("/:id/verifications", s.getVerificationHistory)
		certificates.GET("/:id/revocation", s.getRevocationRecord)
		certificates.GET("/:id/compliance/:standardId", s.checkCompliance)
		certificates.GET("/:id/replay", s.replayCertificate)
	}

	v1.GET("/stats", s.getStats)

	ledger := v1.Group("/ledger")
	{
		ledger.GET("/entries", s.listLedgerEntries)
		ledger.GET("/entries/:sequence", s.getLedgerEntry)
		ledger.GET("/entries/:sequence/proof", s.getInclusionProof)
		ledger.GET("/verify", s.verifyChain)
		ledger.POST("/anchors", write, s.createAnchor)
		ledger.GET("/anchors/latest", s.getLatestAnchor)
		ledger.GET("/anchors/:anchorId", s.getAnchor)
		ledger.GET("/anchors/:anchorId/verify", s.verifyAnchor)
	}

	search := v1.Group("/search")
	{
		search.GET("/products", s.searchProducts)
		search.GET("/certificates", s.searchCertificates)
	}
}

func (s *Server) getMetrics(c *gin.Context) {
	s.deps.Metrics.SetGauge("goroutines", int64(runtime.NumGoroutine()))
	c.JSON(http.StatusOK, s.deps.Metrics.GetAllMetrics())
}

func (s *Server) getHealth(c *gin.Context) {
	snapshot := s.deps.Metrics.GetAllMetrics()

	status := http.StatusOK
	healthy := s.deps.Metrics.Healthy()
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":  healthy,
		"details": snapshot.Health,
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.cfg.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}
	return nil
}
