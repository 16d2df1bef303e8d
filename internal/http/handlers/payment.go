package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lessonpay-backend/internal/http/response"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
	"github.com/yungbote/lessonpay-backend/internal/platform/momo"
	"github.com/yungbote/lessonpay-backend/internal/services"
)

const maxWebhookBody = 64 << 10

type PaymentHandler struct {
	log             *logger.Logger
	svc             services.PaymentService
	momoPartnerCode string
}

func NewPaymentHandler(log *logger.Logger, svc services.PaymentService, momoPartnerCode string) *PaymentHandler {
	return &PaymentHandler{
		log:             log.With("handler", "PaymentHandler"),
		svc:             svc,
		momoPartnerCode: momoPartnerCode,
	}
}

type createIntentRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// POST /api/v1/lessons/:id/payment-intents
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	lessonID, ok := lessonIDParam(c)
	if !ok {
		return
	}
	var req createIntentRequest
	if !bindJSON(c, &req) {
		return
	}
	intent, err := h.svc.CreateIntent(c.Request.Context(), userID, lessonID, req.Amount)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"intent": intent})
}

type webhookNack struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
}

// POST /api/v1/payments/webhooks/:provider
//
// Gateways retry on anything but a 2xx, so only handled deliveries (including
// idempotent no-ops) answer 200.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	provider := c.Param("provider")
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil || len(raw) == 0 {
		c.JSON(http.StatusBadRequest, webhookNack{ResultCode: 1, Message: "empty body"})
		return
	}

	res, err := h.svc.ApplyWebhook(c.Request.Context(), provider, raw)
	if err != nil {
		_ = c.Error(err)
		status, code := response.Status(err)
		msg := code
		if code == "invalid_signature" {
			msg = "rejected"
		}
		c.JSON(status, webhookNack{ResultCode: 1, Message: msg})
		return
	}

	if provider == momo.ProviderName {
		c.JSON(http.StatusOK, momo.NewAck(res.Event, h.momoPartnerCode))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
