package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestWebhookHandler_PaymentConfirmed_InvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &WebhookHandler{escrow: nil}
	r.POST("/webhooks/payment", handler.PaymentConfirmed)

	req, _ := http.NewRequest("POST", "/webhooks/payment", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookHandler_PaymentConfirmed_InvalidTransactionID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &WebhookHandler{escrow: nil}
	r.POST("/webhooks/payment", handler.PaymentConfirmed)

	body := `{"transaction_id":"не uuid","payment_reference":"PSK-1"}`
	req, _ := http.NewRequest("POST", "/webhooks/payment", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
