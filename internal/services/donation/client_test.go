package donation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"donation-agent/internal/status"
	"donation-agent/models"
	"donation-agent/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(&Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second})
	return client, &hits
}

func TestClient_CreateSession_Success(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/donation", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "123", body["phone"])
		assert.Equal(t, "Jean", body["surname"])
		// amount travels as a JSON number, never as text
		assert.Equal(t, float64(500), body["amount"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"payment_url":"https://pay/x"}`))
	})

	session, err := client.CreateSession(context.Background(), &models.DonationRequest{Phone: "123", Surname: "Jean", Amount: 500})

	require.NoError(t, err)
	assert.Equal(t, "https://pay/x", session.PaymentURL)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestClient_CreateSession_MissingURLIsServiceError(t *testing.T) {
	for _, body := range []string{`{}`, `{"payment_url":""}`, `{"payment_url":"   "}`, ``} {
		client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})

		session, err := client.CreateSession(context.Background(), &models.DonationRequest{Phone: "1", Amount: 1})

		assert.Nil(t, session, body)
		assert.ErrorIs(t, err, status.ErrService, body)
		assert.NotErrorIs(t, err, status.ErrTransport, body)
		assert.Equal(t, int32(1), atomic.LoadInt32(hits), body)
	}
}

func TestClient_CreateSession_HTTPErrorIsTransportError(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	_, err := client.CreateSession(context.Background(), &models.DonationRequest{Phone: "1", Amount: 1})

	assert.ErrorIs(t, err, status.ErrTransport)
	assert.Contains(t, err.Error(), "502")
	// no retries
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestClient_CreateSession_UnreachableIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client := NewClient(&Config{BaseURL: base, Timeout: time.Second})
	_, err := client.CreateSession(context.Background(), &models.DonationRequest{Phone: "1", Amount: 1})

	assert.ErrorIs(t, err, status.ErrTransport)
}

func TestClient_CreateSession_OpenBreakerFailsFast(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client.breaker = utils.NewCircuitBreaker("test", utils.BreakerSettings{MinRequests: 1, FailureRatio: 0.5, Timeout: time.Minute})

	_, err := client.CreateSession(context.Background(), &models.DonationRequest{Phone: "1", Amount: 1})
	require.ErrorIs(t, err, status.ErrTransport)

	_, err = client.CreateSession(context.Background(), &models.DonationRequest{Phone: "1", Amount: 1})
	assert.ErrorIs(t, err, status.ErrTransport)
	assert.ErrorIs(t, err, utils.ErrBreakerOpen)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestClient_ServiceErrorsDoNotTripBreaker(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	for i := 0; i < 30; i++ {
		_, err := client.CreateSession(context.Background(), &models.DonationRequest{Phone: "1", Amount: 1})
		require.ErrorIs(t, err, status.ErrService)
	}

	assert.Equal(t, utils.StateClosed, client.breaker.State())
	assert.Equal(t, int32(30), atomic.LoadInt32(hits))
}

func TestClient_FetchStatus_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/donation/T1/status", r.URL.Path)
		w.Write([]byte(`{"transaction_id":"T1","status":"completed","amount":500,"surname":"Jean","phone":"123"}`))
	})

	tx, err := client.FetchStatus(context.Background(), "T1")

	require.NoError(t, err)
	assert.Equal(t, "T1", tx.TransactionID)
	assert.Equal(t, models.PaymentCompleted, tx.Outcome())
	require.NotNil(t, tx.Amount)
	assert.True(t, decimal.NewFromInt(500).Equal(*tx.Amount))
}

func TestClient_FetchStatus_EscapesIDAndFillsMissingID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/donation/a%2Fb/status", r.URL.EscapedPath())
		w.Write([]byte(`{"status":"mystery"}`))
	})

	tx, err := client.FetchStatus(context.Background(), "a/b")

	require.NoError(t, err)
	assert.Equal(t, "a/b", tx.TransactionID)
	assert.Equal(t, models.PaymentPending, tx.Outcome())
}

func TestClient_FetchStatus_EmptyIDNeverCallsService(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("service must not be called")
	})

	_, err := client.FetchStatus(context.Background(), "  ")

	assert.ErrorIs(t, err, status.ErrValidation)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestClient_FetchStatus_HTTPErrorIsTransportError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	_, err := client.FetchStatus(context.Background(), "T1")

	assert.ErrorIs(t, err, status.ErrTransport)
}

func TestClient_CancelledContextIsTransportError(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchStatus(ctx, "T1")

	assert.ErrorIs(t, err, status.ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}
