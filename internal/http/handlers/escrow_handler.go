package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

type EscrowHandler struct {
	escrow *service.EscrowService
}

func NewEscrowHandler(escrow *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrow: escrow}
}

// Create POST /api/transactions
func (h *EscrowHandler) Create(c *gin.Context) {
	payerID, err := currentUserID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		PayeeID     string  `json:"payee_id" binding:"required"`
		Amount      string  `json:"amount" binding:"required"`
		Description string  `json:"description" binding:"required"`
		Category    *string `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payeeID, err := uuid.Parse(req.PayeeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный payee_id"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверная сумма"})
		return
	}

	t, err := h.escrow.Create(c.Request.Context(), payerID, payeeID, amount, req.Description, req.Category)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, t)
}

// Get GET /api/transactions/:id
func (h *EscrowHandler) Get(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный id сделки"})
		return
	}

	t, err := h.escrow.GetTransaction(c.Request.Context(), id, userID, currentIsArbiter(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// GetByReference GET /api/transactions/reference/:reference
func (h *EscrowHandler) GetByReference(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	t, err := h.escrow.GetByReference(c.Request.Context(), c.Param("reference"), userID, currentIsArbiter(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// List GET /api/transactions
func (h *EscrowHandler) List(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	limit := parseIntQuery(c, "limit", 20)
	offset := parseIntQuery(c, "offset", 0)

	transactions, err := h.escrow.ListTransactions(c.Request.Context(), userID, c.Query("role"), c.Query("status"), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

// Timeline GET /api/transactions/:id/timeline
func (h *EscrowHandler) Timeline(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный id сделки"})
		return
	}

	entries, err := h.escrow.Timeline(c.Request.Context(), id, userID, currentIsArbiter(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"timeline": entries})
}

// StartWork POST /api/transactions/:id/start
func (h *EscrowHandler) StartWork(c *gin.Context) {
	h.transition(c, h.escrow.StartWork)
}

// CompleteWork POST /api/transactions/:id/complete
func (h *EscrowHandler) CompleteWork(c *gin.Context) {
	h.transition(c, h.escrow.CompleteWork)
}

// Approve POST /api/transactions/:id/approve
func (h *EscrowHandler) Approve(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный id сделки"})
		return
	}

	t, err := h.escrow.Approve(c.Request.Context(), id, userID)
	if err != nil {
		// Повторное одобрение уже выплаченной сделки — не ошибка для клиента.
		if apperror.IsAlreadyProcessed(err) {
			c.JSON(http.StatusOK, t)
			return
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// Cancel POST /api/transactions/:id/cancel
func (h *EscrowHandler) Cancel(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный id сделки"})
		return
	}

	t, err := h.escrow.Cancel(c.Request.Context(), id, userID)
	if err != nil {
		// Повторная отмена — не ошибка для клиента.
		if apperror.IsAlreadyProcessed(err) {
			c.JSON(http.StatusOK, t)
			return
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// RaiseDispute POST /api/transactions/:id/dispute
func (h *EscrowHandler) RaiseDispute(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный id сделки"})
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "необходимо указать причину спора"})
		return
	}

	t, err := h.escrow.RaiseDispute(c.Request.Context(), id, userID, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// ResolveDispute POST /api/transactions/:id/resolve
func (h *EscrowHandler) ResolveDispute(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный id сделки"})
		return
	}

	var req struct {
		RefundPercentage *int   `json:"refund_percentage" binding:"required"`
		Notes            string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "необходимо указать процент возврата"})
		return
	}

	t, err := h.escrow.ResolveDispute(c.Request.Context(), id, userID, currentIsArbiter(c), *req.RefundPercentage, req.Notes)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// transition — общий каркас для операций исполнителя без тела запроса.
func (h *EscrowHandler) transition(c *gin.Context, op func(ctx context.Context, id, callerID uuid.UUID) (*models.Transaction, error)) {
	userID, err := currentUserID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный id сделки"})
		return
	}

	t, err := op(c.Request.Context(), id, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, t)
}
