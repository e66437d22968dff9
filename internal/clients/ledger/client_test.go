package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
)

func init() {
	retryBackoff = time.Millisecond
}

func TestDebitSendsMovement(t *testing.T) {
	var gotPath, gotKey, gotAuth string
	var gotBody movementRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(movementResponse{AccountID: "acct-1", Balance: "900.00", Currency: "USD"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	ctx := interfaces.WithIdempotencyKey(context.Background(), "inv-1:fund")

	balance, err := client.Debit(ctx, "acct-1", decimal.NewFromInt(100), "USD")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(900)))
	assert.Equal(t, "/v1/accounts/acct-1/debit", gotPath)
	assert.Equal(t, "inv-1:fund", gotKey)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, movementRequest{Amount: "100.00", Currency: "USD"}, gotBody)
}

func TestCreditPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(movementResponse{Balance: "1050.5"})
	}))
	defer srv.Close()

	balance, err := NewClient(srv.URL, "k").Credit(context.Background(), "acct-2", decimal.RequireFromString("50.5"), "USD")
	require.NoError(t, err)
	assert.Equal(t, "/v1/accounts/acct-2/credit", gotPath)
	assert.Equal(t, "1050.5", balance.String())
}

func TestInsufficientFundsIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "balance too low", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k").Debit(context.Background(), "acct-1", decimal.NewFromInt(100), "USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
	assert.Equal(t, "balance too low", apiErr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTransientFailureRetriesWithSameKey(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		n := len(keys)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(movementResponse{Balance: "10"})
	}))
	defer srv.Close()

	ctx := interfaces.WithIdempotencyKey(context.Background(), "inv-9:2025-02-15")
	_, err := NewClient(srv.URL, "k", WithMaxRetries(3)).Credit(ctx, "acct-1", decimal.NewFromInt(5), "USD")
	require.NoError(t, err)
	assert.Equal(t, []string{"inv-9:2025-02-15", "inv-9:2025-02-15", "inv-9:2025-02-15"}, keys)
}

func TestRetriesExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", WithMaxRetries(2)).Credit(context.Background(), "acct-1", decimal.NewFromInt(5), "USD")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path == "/v1/accounts/garbled/credit" {
			w.Write([]byte("{not json"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k")
	_, err := client.Credit(context.Background(), "missing", decimal.NewFromInt(5), "USD")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrInsufficientFunds)

	_, err = client.Credit(context.Background(), "garbled", decimal.NewFromInt(5), "USD")
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMoveValidatesBeforeCalling(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "k")

	_, err := client.Debit(context.Background(), "acct-1", decimal.Zero, "USD")
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = client.Debit(context.Background(), "", decimal.NewFromInt(1), "USD")
	assert.Error(t, err)
}

func TestCancelledContextStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(srv.URL, "k").Credit(ctx, "acct-1", decimal.NewFromInt(5), "USD")
	assert.ErrorIs(t, err, context.Canceled)
}
