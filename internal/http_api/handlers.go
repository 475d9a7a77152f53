package http_api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/solvere/internal/models"
)

const (
	jobSweep = "sweep"
	jobRenew = "renew"
)

// VerifyPaymentRequest represents the JSON body for payment verification
type VerifyPaymentRequest struct {
	TxHash   string      `json:"txHash" binding:"required"`
	Merchant string      `json:"merchant" binding:"required"`
	Amount   json.Number `json:"amount" binding:"required"` // informational, never recorded
	PlanID   string      `json:"plan_id"`
	Customer string      `json:"customer"`
}

// VerifyPaymentResponse is returned for every verification, failed or not
type VerifyPaymentResponse struct {
	Verified     bool                 `json:"verified"`
	Message      string               `json:"message,omitempty"`
	Payer        string               `json:"payer,omitempty"`
	Merchant     string               `json:"merchant,omitempty"`
	Amount       string               `json:"amount,omitempty"`
	Timestamp    string               `json:"timestamp,omitempty"`
	PaymentID    string               `json:"payment_id,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// CancelSubscriptionRequest represents the JSON body for cancellation
type CancelSubscriptionRequest struct {
	SubscriptionID string `json:"subscription_id" binding:"required"`
}

type CancelSubscriptionResponse struct {
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
	UpdatedAt      string `json:"updated_at"`
}

// AccessRequest represents the JSON body for an access check
type AccessRequest struct {
	Wallet   string `json:"wallet" binding:"required"`
	Merchant string `json:"merchant" binding:"required"`
	PlanID   string `json:"plan_id"`
}

type AccessSubscription struct {
	ID      string `json:"id"`
	Plan    string `json:"plan"`
	Expires int64  `json:"expires"`
}

type AccessResponse struct {
	Access       bool                `json:"access"`
	Reason       string              `json:"reason,omitempty"`
	Subscription *AccessSubscription `json:"subscription,omitempty"`
}

type CreatePlanRequest struct {
	Name     string      `json:"name" binding:"required"`
	Amount   json.Number `json:"amount" binding:"required"`
	Interval string      `json:"interval" binding:"required,oneof=weekly monthly yearly"`
}

type WebhookRequest struct {
	WebhookURL string `json:"webhook_url"`
}

type RunJobRequest struct {
	Job string `json:"job" binding:"required,oneof=sweep renew"`
}

type pendingInvoicesQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// classify maps an error kind to a status code and a message that is safe
// to return to the caller.
func (s *HTTPServer) classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	default:
		s.logger.Errorw("Request failed", "error", err)
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	status, msg := s.classify(err)
	c.JSON(status, gin.H{"error": msg})
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// verifyPayment is a handler for the /payments/verify endpoint.
func (s *HTTPServer) verifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debugw("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, VerifyPaymentResponse{
			Verified: false,
			Error:    "Invalid request body: " + err.Error(),
		})
		return
	}

	result, err := s.solvere.VerifyPayment(c.Request.Context(), &models.VerifyRequest{
		TxHash:   req.TxHash,
		Merchant: req.Merchant,
		Amount:   req.Amount.String(),
		PlanID:   req.PlanID,
		Customer: req.Customer,
	})
	if err != nil {
		status, msg := s.classify(err)
		c.JSON(status, VerifyPaymentResponse{Verified: false, Error: msg})
		return
	}

	resp := VerifyPaymentResponse{
		Verified:  true,
		Payer:     result.Event.Payer,
		Merchant:  result.Event.Merchant,
		Amount:    result.Event.Amount,
		Timestamp: strconv.FormatInt(result.Event.Timestamp, 10),
	}
	if result.AlreadyRecorded {
		resp.Message = "Payment already recorded"
		c.JSON(http.StatusOK, resp)
		return
	}

	resp.PaymentID = result.Payment.ID
	resp.Subscription = result.Subscription
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) listPayments(c *gin.Context) {
	payments, err := s.solvere.ListPayments(c.Request.Context(), c.Query("merchant"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments, "count": len(payments)})
}

func (s *HTTPServer) listPendingInvoices(c *gin.Context) {
	var q pendingInvoicesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query: " + err.Error()})
		return
	}

	payments, err := s.solvere.ListPendingInvoices(c.Request.Context(), q.Limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments, "count": len(payments)})
}

func (s *HTTPServer) markInvoiceSent(c *gin.Context) {
	id := c.Param("id")
	if err := s.solvere.MarkInvoiceSent(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_id": id, "invoice_sent": true})
}

// cancelSubscription is a handler for the /subscriptions/cancel endpoint.
func (s *HTTPServer) cancelSubscription(c *gin.Context) {
	var req CancelSubscriptionRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debugw("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	subscription, err := s.solvere.CancelSubscription(c.Request.Context(), req.SubscriptionID)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, CancelSubscriptionResponse{
		SubscriptionID: subscription.ID,
		Status:         subscription.Status,
		UpdatedAt:      subscription.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *HTTPServer) listSubscriptions(c *gin.Context) {
	subscriptions, err := s.solvere.ListSubscriptions(c.Request.Context(), c.Query("merchant"), c.Query("customer"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subscriptions, "count": len(subscriptions)})
}

// checkAccess is a handler for the /access/verify endpoint.
func (s *HTTPServer) checkAccess(c *gin.Context) {
	var req AccessRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debugw("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"access": false, "error": "Invalid request body: " + err.Error()})
		return
	}

	result, err := s.solvere.CheckAccess(c.Request.Context(), req.Wallet, req.Merchant, req.PlanID)
	if err != nil {
		status, msg := s.classify(err)
		c.JSON(status, gin.H{"access": false, "error": msg})
		return
	}

	resp := AccessResponse{Access: result.Access, Reason: result.Reason}
	if result.Access && result.Subscription != nil {
		resp.Subscription = &AccessSubscription{
			ID:      result.Subscription.ID,
			Plan:    result.Subscription.PlanID,
			Expires: result.Subscription.CurrentPeriodEnd,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) createPlan(c *gin.Context) {
	var req CreatePlanRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	merchant := authenticatedMerchant(c)
	plan, err := s.solvere.CreatePlan(c.Request.Context(), merchant.ID, req.Name, req.Amount.String(), req.Interval)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.logger.Infow("Plan created", "plan_id", plan.ID, "merchant_id", merchant.ID)
	c.JSON(http.StatusCreated, plan)
}

func (s *HTTPServer) listPlans(c *gin.Context) {
	plans, err := s.solvere.ListPlans(c.Request.Context(), c.Query("merchant"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans, "count": len(plans)})
}

func (s *HTTPServer) setWebhook(c *gin.Context) {
	var req WebhookRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	merchant := authenticatedMerchant(c)
	if err := s.solvere.SetMerchantWebhook(c.Request.Context(), merchant.ID, req.WebhookURL); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"merchant_id": merchant.ID, "webhook_url": req.WebhookURL})
}

// runJob triggers a background job on demand.
func (s *HTTPServer) runJob(c *gin.Context) {
	var req RunJobRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	now := s.clock().Unix()
	switch req.Job {
	case jobSweep:
		expired, err := s.solvere.SweepExpired(c.Request.Context(), now)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"job": req.Job, "expired": expired})
	case jobRenew:
		marked, err := s.solvere.RunRenewalReminders(c.Request.Context(), now)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"job": req.Job, "payment_required": marked})
	}
}

// receiveWebhook is a sink that accepts any event, handy for trying the
// webhook integration against the service itself.
func (s *HTTPServer) receiveWebhook(c *gin.Context) {
	var payload map[string]interface{}

	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	s.logger.Infow("Webhook received", "event", c.GetHeader("X-Webhook-Event"), "payload", payload)
	c.JSON(http.StatusOK, gin.H{"received": true, "timestamp": s.clock().UTC().Format(time.RFC3339)})
}
