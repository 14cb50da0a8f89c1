package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"entitlement-api/internal/database"
	"entitlement-api/internal/models"
	"entitlement-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeValidator struct {
	result *services.ValidationResult
	err    error
	got    services.ValidateRequest
}

func (f *fakeValidator) Validate(_ context.Context, req services.ValidateRequest) (*services.ValidationResult, error) {
	f.got = req
	return f.result, f.err
}

type fakeProcessor struct {
	outcome *services.Outcome
	err     error
	got     string
}

func (f *fakeProcessor) Process(_ context.Context, signedPayload string) (*services.Outcome, error) {
	f.got = signedPayload
	return f.outcome, f.err
}

type fakeResolver struct {
	status services.PremiumStatus
	err    error
}

func (f *fakeResolver) IsPremium(context.Context, string) (services.PremiumStatus, error) {
	return f.status, f.err
}

type fakeHistory struct {
	subscriptions []models.Subscription
	err           error
}

func (f *fakeHistory) ListSubscriptions(context.Context, string) ([]models.Subscription, error) {
	return f.subscriptions, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newRouter(cfg Config) *gin.Engine {
	r := gin.New()
	SetupRoutes(r, NewHandler(cfg))
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func validBody() ValidateSubscriptionRequest {
	return ValidateSubscriptionRequest{
		PurchaseToken: "token",
		UserID:        "user-a",
		ProductID:     "premium.monthly",
		Environment:   "Sandbox",
	}
}

func TestValidateSubscription_Active(t *testing.T) {
	expires := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	validator := &fakeValidator{result: &services.ValidationResult{Active: true, TransactionID: "1000", ExpiresDate: &expires}}
	r := newRouter(Config{Validator: validator})

	w := doJSON(t, r, http.MethodPost, "/api/subscription/validate", validBody())
	require.Equal(t, http.StatusOK, w.Code)

	var resp ValidateSubscriptionResponse
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.True(t, resp.SubscriptionActive)
	assert.Equal(t, "1000", resp.TransactionID)
	assert.Equal(t, "2024-02-01T00:00:00Z", resp.ExpiresDate)
	assert.Empty(t, resp.Error)

	assert.Equal(t, "token", validator.got.PurchaseToken)
	assert.Equal(t, "user-a", validator.got.UserID)
	assert.Equal(t, "Sandbox", validator.got.Environment)
}

func TestValidateSubscription_Inactive(t *testing.T) {
	r := newRouter(Config{Validator: &fakeValidator{result: &services.ValidationResult{TransactionID: "1000"}}})

	w := doJSON(t, r, http.MethodPost, "/api/subscription/validate", validBody())
	require.Equal(t, http.StatusOK, w.Code)

	var resp ValidateSubscriptionResponse
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.False(t, resp.SubscriptionActive)
	assert.Empty(t, resp.ExpiresDate)
}

func TestValidateSubscription_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "signature", err: fmt.Errorf("%w: bad chain", services.ErrSignatureInvalid), status: http.StatusBadRequest},
		{name: "ownership", err: fmt.Errorf("%w: a vs b", services.ErrOwnershipMismatch), status: http.StatusForbidden},
		{name: "store", err: fmt.Errorf("%w: down", database.ErrStore), status: http.StatusInternalServerError},
		{name: "other", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(Config{Validator: &fakeValidator{err: tt.err}})

			w := doJSON(t, r, http.MethodPost, "/api/subscription/validate", validBody())
			assert.Equal(t, tt.status, w.Code)

			var resp ValidateSubscriptionResponse
			decode(t, w, &resp)
			assert.False(t, resp.Success)
			assert.False(t, resp.SubscriptionActive)
			assert.Equal(t, tt.err.Error(), resp.Error)
		})
	}
}

func TestValidateSubscription_ReleaseHidesDetails(t *testing.T) {
	r := newRouter(Config{
		Validator: &fakeValidator{err: fmt.Errorf("%w: token for a submitted by b", services.ErrOwnershipMismatch)},
		Release:   true,
	})

	w := doJSON(t, r, http.MethodPost, "/api/subscription/validate", validBody())
	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp ValidateSubscriptionResponse
	decode(t, w, &resp)
	assert.Equal(t, genericErrorMessage, resp.Error)
}

func TestValidateSubscription_DegradedSuccess(t *testing.T) {
	err := fmt.Errorf("%w: %w", services.ErrDegradedSuccess, fmt.Errorf("%w: profile missing", database.ErrStore))
	r := newRouter(Config{Validator: &fakeValidator{
		result: &services.ValidationResult{Active: true, TransactionID: "1000"},
		err:    err,
	}})

	w := doJSON(t, r, http.MethodPost, "/api/subscription/validate", validBody())
	require.Equal(t, http.StatusOK, w.Code)

	var resp ValidateSubscriptionResponse
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.True(t, resp.SubscriptionActive)
	assert.NotEmpty(t, resp.Error)
}

func TestValidateSubscription_BadRequest(t *testing.T) {
	validator := &fakeValidator{}
	r := newRouter(Config{Validator: validator})

	missing := validBody()
	missing.PurchaseToken = ""
	badEnv := validBody()
	badEnv.Environment = "Staging"

	for _, body := range []interface{}{missing, badEnv, "{not json"} {
		w := doJSON(t, r, http.MethodPost, "/api/subscription/validate", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	assert.Empty(t, validator.got.PurchaseToken, "validator must not be called")
}

func TestAppStoreNotification(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		outcome *services.Outcome
		err     error
		status  int
		success bool
	}{
		{
			name:    "processed",
			body:    `{"signedPayload":"jws"}`,
			outcome: &services.Outcome{Type: models.NotificationTypeDidRenew, RawType: "DID_RENEW", Applied: true},
			status:  http.StatusOK,
			success: true,
		},
		{
			name:    "unattributed",
			body:    `{"signedPayload":"jws"}`,
			outcome: &services.Outcome{Type: models.NotificationTypeExpired, RawType: "EXPIRED"},
			err:     fmt.Errorf("%w: original transaction 1000", services.ErrUnattributedTransaction),
			status:  http.StatusOK,
			success: true,
		},
		{
			name:   "signature invalid",
			body:   `{"signedPayload":"jws"}`,
			err:    fmt.Errorf("%w: bad chain", services.ErrSignatureInvalid),
			status: http.StatusInternalServerError,
		},
		{
			name:   "store failure",
			body:   `{"signedPayload":"jws"}`,
			err:    fmt.Errorf("%w: down", database.ErrStore),
			status: http.StatusInternalServerError,
		},
		{name: "empty body", body: "", status: http.StatusBadRequest},
		{name: "malformed json", body: `{"signedPayload":`, status: http.StatusBadRequest},
		{name: "missing signedPayload", body: `{"other":"x"}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := &fakeProcessor{outcome: tt.outcome, err: tt.err}
			r := newRouter(Config{Processor: processor})

			w := doJSON(t, r, http.MethodPost, "/api/appstore/notifications", tt.body)
			assert.Equal(t, tt.status, w.Code)

			var resp struct {
				Success bool `json:"success"`
			}
			decode(t, w, &resp)
			assert.Equal(t, tt.success, resp.Success)

			if tt.status == http.StatusBadRequest {
				assert.Empty(t, processor.got, "processor must not be called")
			} else {
				assert.Equal(t, "jws", processor.got)
			}
		})
	}
}

func TestAppStoreNotification_EnvironmentRoutes(t *testing.T) {
	for _, path := range []string{"/api/appstore/notifications/production", "/api/appstore/notifications/sandbox"} {
		processor := &fakeProcessor{outcome: &services.Outcome{Type: models.NotificationTypeSubscribed}}
		r := newRouter(Config{Processor: processor})

		w := doJSON(t, r, http.MethodPost, path, `{"signedPayload":"jws"}`)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "jws", processor.got)
	}
}

func TestGetPremiumStatus(t *testing.T) {
	r := newRouter(Config{Resolver: &fakeResolver{status: services.PremiumStatus{Premium: true, Reason: services.ReasonOneTimeUnlock}}})

	w := doJSON(t, r, http.MethodGet, "/api/subscription/premium?user_id=user-a", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                   `json:"success"`
		Data    services.PremiumStatus `json:"data"`
	}
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.Premium)
	assert.Equal(t, services.ReasonOneTimeUnlock, resp.Data.Reason)

	w = doJSON(t, r, http.MethodGet, "/api/subscription/premium", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPremiumStatus_Error(t *testing.T) {
	r := newRouter(Config{Resolver: &fakeResolver{err: fmt.Errorf("%w: down", database.ErrStore)}})

	w := doJSON(t, r, http.MethodGet, "/api/subscription/premium?user_id=user-a", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetSubscriptionHistory(t *testing.T) {
	expires := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	history := &fakeHistory{subscriptions: []models.Subscription{
		{TransactionID: "1001", OriginalTransactionID: "1000", ProductID: "premium.monthly", ExpiresAt: &expires},
		{TransactionID: "1000", OriginalTransactionID: "1000", ProductID: "premium.monthly", Expired: true},
	}}
	r := newRouter(Config{History: history})

	w := doJSON(t, r, http.MethodGet, "/api/subscription/history?user_id=user-a", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp SubscriptionHistoryResponse
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	require.Len(t, resp.Subscriptions, 2)
	assert.Equal(t, "1001", resp.Subscriptions[0].TransactionID)
	require.NotNil(t, resp.Subscriptions[0].ExpiresDate)
	assert.True(t, resp.Subscriptions[0].ExpiresDate.Equal(expires))
	assert.True(t, resp.Subscriptions[1].Expired)

	w = doJSON(t, r, http.MethodGet, "/api/subscription/history", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSubscriptionHistory_Empty(t *testing.T) {
	r := newRouter(Config{History: &fakeHistory{}})

	w := doJSON(t, r, http.MethodGet, "/api/subscription/history?user_id=user-a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subscriptions":[]`)
}

func TestHealth(t *testing.T) {
	w := doJSON(t, newRouter(Config{Database: fakePinger{}}), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, newRouter(Config{Database: fakePinger{err: errors.New("down")}}), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestIDAndMetrics(t *testing.T) {
	r := newRouter(Config{Database: fakePinger{}})

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))

	w = doJSON(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "entitlement_http_requests_total")
}

func TestEnvelopeCarriesRequestID(t *testing.T) {
	r := newRouter(Config{Resolver: &fakeResolver{status: services.PremiumStatus{Reason: services.ReasonNone}}})

	for _, path := range []string{"/api/subscription/premium?user_id=user-a", "/api/subscription/premium"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Request-ID", "req-42")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		var resp struct {
			RequestID string `json:"requestId"`
		}
		decode(t, w, &resp)
		assert.Equal(t, "req-42", resp.RequestID, path)
	}
}
