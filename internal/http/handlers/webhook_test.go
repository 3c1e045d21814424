package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stonepot/internal/config"
	"stonepot/internal/service"

	"github.com/gin-gonic/gin"
)

func newWebhookTestHandler(secret string) *Handler {
	return &Handler{
		Cfg:      &config.Config{WebhookSecret: secret},
		Webhooks: service.NewWebhookService(nil, nil, nil, 5),
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *Handler, body, signature string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	if signature != "" {
		c.Request.Header.Set("X-Stonepot-Signature", signature)
	}
	h.PaymentWebhook(c)
	return w
}

func TestPaymentWebhook_RejectsMissingSignature(t *testing.T) {
	h := newWebhookTestHandler("hush")
	w := postWebhook(h, `{"event":"charge.success","data":{"reference":"dep:x"}}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestPaymentWebhook_RejectsBadSignature(t *testing.T) {
	h := newWebhookTestHandler("hush")
	body := `{"event":"charge.success","data":{"reference":"dep:x"}}`
	w := postWebhook(h, body, sign("wrong-secret", []byte(body)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestPaymentWebhook_RejectsUnknownEventType(t *testing.T) {
	h := newWebhookTestHandler("hush")
	body := `{"event":"charge.pending","data":{"reference":"dep:x"}}`
	w := postWebhook(h, body, sign("hush", []byte(body)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPaymentWebhook_RejectsMissingReference(t *testing.T) {
	h := newWebhookTestHandler("hush")
	body := `{"event":"charge.success","data":{"amount":500}}`
	w := postWebhook(h, body, sign("hush", []byte(body)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPaymentWebhook_RejectsMalformedJSON(t *testing.T) {
	h := newWebhookTestHandler("hush")
	body := `{"event":`
	w := postWebhook(h, body, sign("hush", []byte(body)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
