package payment

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebhookServer(t *testing.T) (*gin.Engine, *testEnv, func(eventType, txID, paymentID string, amount int64) ([]byte, string)) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	ing, env, mock := newTestIngestor(t)

	r := gin.New()
	NewWebhookHandler(ing, testLogger()).RegisterRoutes(r.Group("/api/v1"))

	sign := func(eventType, txID, paymentID string, amount int64) ([]byte, string) {
		return signedMockPayload(t, mock, eventType, txID, paymentID, amount)
	}
	return r, env, sign
}

func postWebhook(r *gin.Engine, gatewayID string, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+gatewayID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("X-Signature", sig)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookEndpoint(t *testing.T) {
	r, env, sign := newWebhookServer(t)

	o := env.seedOrder(t, 1000)
	p := env.seedPayment(t, o, StatusProcessing, "tx_1")

	t.Run("valid delivery", func(t *testing.T) {
		body, sig := sign("payment.completed", "tx_1", p.ID.String(), 1000)
		w := postWebhook(r, "mock-main", body, sig)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, StatusCompleted, env.reload(t, p.ID).Status)
	})

	t.Run("unknown gateway", func(t *testing.T) {
		body, sig := sign("payment.completed", "tx_1", p.ID.String(), 1000)
		w := postWebhook(r, "missing", body, sig)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		body, _ := sign("payment.completed", "tx_1", p.ID.String(), 1000)
		w := postWebhook(r, "mock-main", body, "deadbeef")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown payment still acknowledged", func(t *testing.T) {
		body, sig := sign("payment.completed", "tx_ghost", "", 1000)
		w := postWebhook(r, "mock-main", body, sig)
		assert.Equal(t, http.StatusOK, w.Code)

		hooks, err := env.repo.ListWebhooks(context.Background(), "mock-main", 50)
		require.NoError(t, err)
		found := false
		for _, hk := range hooks {
			if hk.RejectionReason != nil && *hk.RejectionReason == "no matching payment" {
				found = true
			}
		}
		assert.True(t, found)
	})
}
