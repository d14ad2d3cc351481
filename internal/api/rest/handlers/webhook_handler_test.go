package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/integration/stripe"
	"github.com/Dhoini/ekaty/internal/integration/stripe/stripetest"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

type fakeWebhookService struct {
	processed []*domain.BillingEvent
	err       error
	events    map[uuid.UUID]*domain.WebhookEvent
}

func (f *fakeWebhookService) Process(_ context.Context, ev *domain.BillingEvent) (*domain.WebhookResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.processed = append(f.processed, ev)
	return &domain.WebhookResult{EventID: ev.ID, Status: domain.WebhookEventStatusProcessed, Duplicate: len(f.processed) > 1}, nil
}

func (f *fakeWebhookService) ListEvents(_ context.Context, status domain.WebhookEventStatus, _, _ int) ([]domain.WebhookEvent, int, error) {
	var out []domain.WebhookEvent
	for _, e := range f.events {
		if status == "" || e.Status == status {
			out = append(out, *e)
		}
	}
	return out, len(out), nil
}

func (f *fakeWebhookService) GetEvent(_ context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	if e, ok := f.events[id]; ok {
		return e, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeWebhookService) Retry(_ context.Context, id uuid.UUID) (*domain.WebhookResult, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if e.Status != domain.WebhookEventStatusFailed {
		return nil, domain.ErrInvalidOperation
	}
	e.Status = domain.WebhookEventStatusProcessed
	return &domain.WebhookResult{EventID: e.ExternalID, Status: e.Status}, nil
}

func newWebhookRouter(svc *fakeWebhookService) *gin.Engine {
	h := NewWebhookHandler(stripe.NewEventParser(webhookSecret), svc, logger.NewNop())
	r := gin.New()
	r.POST("/webhooks/stripe", h.HandleStripeWebhook)
	r.GET("/admin/webhooks", h.ListEvents)
	r.GET("/admin/webhooks/:id", h.GetEvent)
	r.POST("/admin/webhooks/:id/retry", h.Retry)
	return r
}

func postEvent(r http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(stripe.SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func subscriptionEvent(id string) []byte {
	sub := stripetest.Subscription("sub_1", "cus_1", "active", "price_pro", map[string]string{"tier": "PRO"})
	return stripetest.Event(id, "customer.subscription.updated", time.Now(), sub)
}

func TestWebhookHandler_HandleStripeWebhook(t *testing.T) {
	t.Run("valid signature is processed", func(t *testing.T) {
		svc := &fakeWebhookService{}
		r := newWebhookRouter(svc)
		payload := subscriptionEvent("evt_1")

		w := postEvent(r, payload, stripetest.Sign(payload, webhookSecret, time.Now()))

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var body struct {
			Received  bool   `json:"received"`
			Status    string `json:"status"`
			Duplicate bool   `json:"duplicate"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Received)
		assert.Equal(t, "processed", body.Status)
		assert.False(t, body.Duplicate)
		require.Len(t, svc.processed, 1)
		assert.Equal(t, "evt_1", svc.processed[0].ID)
		assert.Equal(t, domain.WebhookEventSubscriptionUpdated, svc.processed[0].Type)
	})

	t.Run("bad signature is rejected", func(t *testing.T) {
		svc := &fakeWebhookService{}
		r := newWebhookRouter(svc)
		payload := subscriptionEvent("evt_2")

		w := postEvent(r, payload, stripetest.Sign(payload, "whsec_other", time.Now()))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = postEvent(r, payload, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, svc.processed)
	})

	t.Run("stale timestamp is rejected", func(t *testing.T) {
		svc := &fakeWebhookService{}
		payload := subscriptionEvent("evt_3")

		w := postEvent(newWebhookRouter(svc), payload, stripetest.Sign(payload, webhookSecret, time.Now().Add(-time.Hour)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("in flight asks for redelivery", func(t *testing.T) {
		svc := &fakeWebhookService{err: domain.ErrEventInFlight}
		payload := subscriptionEvent("evt_4")

		w := postEvent(newWebhookRouter(svc), payload, stripetest.Sign(payload, webhookSecret, time.Now()))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("processing failure returns 500", func(t *testing.T) {
		svc := &fakeWebhookService{err: assert.AnError}
		payload := subscriptionEvent("evt_5")

		w := postEvent(newWebhookRouter(svc), payload, stripetest.Sign(payload, webhookSecret, time.Now()))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), assert.AnError.Error())
	})
}

func TestWebhookHandler_AdminEndpoints(t *testing.T) {
	failed := &domain.WebhookEvent{ID: uuid.New(), ExternalID: "evt_failed", Status: domain.WebhookEventStatusFailed}
	done := &domain.WebhookEvent{ID: uuid.New(), ExternalID: "evt_done", Status: domain.WebhookEventStatusProcessed}
	svc := &fakeWebhookService{events: map[uuid.UUID]*domain.WebhookEvent{failed.ID: failed, done.ID: done}}
	r := newWebhookRouter(svc)

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	w := do(http.MethodGet, "/admin/webhooks?status=failed")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []domain.WebhookEvent `json:"items"`
		Total int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, "evt_failed", list.Items[0].ExternalID)

	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/admin/webhooks?status=weird").Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/admin/webhooks/not-a-uuid").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/admin/webhooks/"+uuid.NewString()).Code)

	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/admin/webhooks/"+done.ID.String()+"/retry").Code)
	w = do(http.MethodPost, "/admin/webhooks/"+failed.ID.String()+"/retry")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"processed"`)
}
