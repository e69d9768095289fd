package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	calldomain "github.com/dineline/dineline/internal/call/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) registerWebhookRoutes() {
	webhooks := s.engine.Group("/webhooks")
	webhooks.POST("/call-status", s.handleCallStatus)
	webhooks.POST("/billing", s.handleBillingPeriod)
}

// statusCallbackPayload matches the telephony provider's status callback.
// Providers post form-encoded bodies; JSON is accepted for internal tooling.
type statusCallbackPayload struct {
	RestaurantID    string `form:"restaurant_id" json:"restaurant_id"`
	CallSID         string `form:"call_sid" json:"call_sid"`
	From            string `form:"from" json:"from"`
	CallStatus      string `form:"call_status" json:"call_status"`
	CallDurationSec *int   `form:"call_duration" json:"call_duration"`
}

// handleCallStatus absorbs a telephony status callback. The provider retries
// on non-2xx and disables the webhook after repeated failures, so internal
// errors are logged and answered with 200 anyway; the sweeper picks up
// whatever was lost. Only a shed request gets a 429, which the provider
// retries with backoff.
func (s *Server) handleCallStatus(c *gin.Context) {
	var payload statusCallbackPayload
	if err := c.ShouldBind(&payload); err != nil {
		s.log.Warn("malformed status callback", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if s.webhookLimiter.Enabled() {
		allowed, err := s.webhookLimiter.Allow(c.Request.Context(), payload.RestaurantID)
		if err != nil {
			s.log.Warn("webhook rate limiter unavailable", zap.Error(err))
		} else if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
	}

	restaurantID, err := snowflake.ParseString(payload.RestaurantID)
	if err != nil {
		s.log.Warn("status callback with bad restaurant id",
			zap.String("restaurant_id", payload.RestaurantID),
		)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	status, err := calldomain.ParseStatus(payload.CallStatus)
	if err != nil {
		s.log.Warn("status callback with unknown status",
			zap.String("call_status", payload.CallStatus),
			zap.String("call_sid", payload.CallSID),
		)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	_, err = s.callSvc.HandleStatusCallback(c.Request.Context(), calldomain.StatusCallbackRequest{
		RestaurantID:      restaurantID,
		ExternalSessionID: payload.CallSID,
		CallerNumber:      payload.From,
		Status:            status,
		DurationSeconds:   payload.CallDurationSec,
	})
	if err != nil {
		s.log.Error("status callback processing failed",
			zap.String("call_sid", payload.CallSID),
			zap.Error(err),
		)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type billingPeriodPayload struct {
	AccountID   string    `json:"account_id" binding:"required"`
	PeriodStart time.Time `json:"period_start" binding:"required"`
	PeriodEnd   time.Time `json:"period_end" binding:"required"`
}

// handleBillingPeriod applies a billing provider period-start event. The
// reset is conditional on the period actually advancing, so provider
// webhook replays are harmless.
func (s *Server) handleBillingPeriod(c *gin.Context) {
	var payload billingPeriodPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	accountID, err := snowflake.ParseString(payload.AccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_account_id"})
		return
	}
	if !payload.PeriodEnd.After(payload.PeriodStart) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_period"})
		return
	}

	if err := s.billingSvc.ResetBillingPeriod(c.Request.Context(), accountID, payload.PeriodStart, payload.PeriodEnd); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
