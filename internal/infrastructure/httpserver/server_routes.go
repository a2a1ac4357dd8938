package httpserver

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	api := s.echo.Group("/api/v1")

	guard := s.middleware.Idempotency.Guard(s.config.Idempotency)
	documents := api.Group("/documents")
	documents.GET("/search", s.searchDocuments)
	documents.POST("", s.createDocument, guard)
	documents.GET("/:id", s.getDocument)
	documents.PUT("/:id", s.updateDocument, guard)
	documents.PATCH("/:id", s.updateDocument, guard)
	documents.DELETE("/:id", s.deleteDocument, guard)

	// per-route so unknown /api/v1 paths stay 404 for anonymous callers
	requireIdentity := s.middleware.Identity.RequireIdentity()
	api.GET("/cache/:namespace/keys", s.listCacheKeys, requireIdentity)
	api.DELETE("/cache/:namespace", s.clearCacheNamespace, requireIdentity)
	api.GET("/idempotency/stats", s.idempotencyStats, requireIdentity)
}
