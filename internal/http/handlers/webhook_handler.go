package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// WebhookHandler принимает подтверждения оплаты от интеграции платёжного
// шлюза. Подпись и сумма платежа проверены на её стороне до вызова;
// доставка at-least-once, поэтому повторы должны возвращать успех.
type WebhookHandler struct {
	escrow *service.EscrowService
}

func NewWebhookHandler(escrow *service.EscrowService) *WebhookHandler {
	return &WebhookHandler{escrow: escrow}
}

// PaymentConfirmed POST /webhooks/payment
func (h *WebhookHandler) PaymentConfirmed(c *gin.Context) {
	var req struct {
		TransactionID    string `json:"transaction_id" binding:"required"`
		PaymentReference string `json:"payment_reference" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := uuid.Parse(req.TransactionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный transaction_id"})
		return
	}

	t, err := h.escrow.MarkPaid(c.Request.Context(), id, req.PaymentReference)
	if err != nil {
		// Ретрай вебхука по уже подтверждённой оплате: отвечаем успехом,
		// повторного удержания не было.
		if apperror.IsAlreadyProcessed(err) {
			c.JSON(http.StatusOK, t)
			return
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, t)
}
