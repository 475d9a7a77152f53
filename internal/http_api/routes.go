package http_api

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/health", s.health)
	if s.registry != nil {
		s.router.GET("/metrics", s.metricsHandler())
	}

	api := s.router.Group("/api/v1")

	api.POST("/payments/verify", s.verifyPayment)
	api.GET("/payments", s.listPayments)
	api.GET("/payments/pending_invoices", s.listPendingInvoices)
	api.POST("/payments/:id/invoice_sent", s.markInvoiceSent)

	api.POST("/subscriptions/cancel", s.cancelSubscription)
	api.GET("/subscriptions", s.listSubscriptions)

	api.POST("/access/verify", s.checkAccess)

	api.GET("/plans", s.listPlans)
	api.POST("/plans", s.requireAPIKey(), s.createPlan)
	api.PUT("/merchants/webhook", s.requireAPIKey(), s.setWebhook)

	api.POST("/webhooks/receive", s.receiveWebhook)

	if s.adminToken != "" {
		api.POST("/jobs/run", s.requireAdminToken(), s.runJob)
	}
}
