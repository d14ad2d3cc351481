package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatusFor(t *testing.T) {
	var verrs domain.ValidationErrors
	verrs.Add("name", "is required")

	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrDuplicate, http.StatusConflict},
		{domain.ErrEventInFlight, http.StatusConflict},
		{verrs.Err(), http.StatusBadRequest},
		{domain.ErrInvalidOperation, http.StatusBadRequest},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{domain.ErrUnauthenticated, http.StatusUnauthorized},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{&domain.FeatureNotAvailableError{Feature: domain.FeatureAnalytics, Tier: domain.TierFree, Required: domain.TierPro}, http.StatusForbidden},
		{fmt.Errorf("stripe: %w", domain.ErrNotConfigured), http.StatusServiceUnavailable},
		{domain.NewExternalServiceError("places", "timeout", "upstream timed out", 504, nil), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func serveError(err error) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		respondError(c, logger.NewNop(), err, "test")
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestRespondError(t *testing.T) {
	t.Run("validation details", func(t *testing.T) {
		var verrs domain.ValidationErrors
		verrs.Add("rating", "must be between 1 and 5")
		w := serveError(fmt.Errorf("save review: %w", verrs))

		require.Equal(t, http.StatusBadRequest, w.Code)
		var body struct {
			Error   string                   `json:"error"`
			Details []domain.ValidationError `json:"details"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "invalid request data", body.Error)
		assert.Equal(t, []domain.ValidationError{{Field: "rating", Message: "must be between 1 and 5"}}, body.Details)
	})

	t.Run("feature gate", func(t *testing.T) {
		w := serveError(&domain.FeatureNotAvailableError{Feature: domain.FeatureAnalytics, Tier: domain.TierBasic, Required: domain.TierPro})

		require.Equal(t, http.StatusForbidden, w.Code)
		var body struct {
			Details map[string]string `json:"details"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "analytics", body.Details["feature"])
		assert.Equal(t, "PRO", body.Details["required_tier"])
		assert.Equal(t, "BASIC", body.Details["current_tier"])
	})

	t.Run("internal error is hidden", func(t *testing.T) {
		w := serveError(errors.New("pq: connection refused"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
		assert.Contains(t, w.Body.String(), "internal server error")
	})
}
