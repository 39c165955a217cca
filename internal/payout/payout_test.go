package payout

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/require"
)

const seller = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestBankRelease(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()

	require.NoError(t, bank.Release(ctx, seller, big.NewInt(10), "w-1"))
	require.NoError(t, bank.Release(ctx, seller, big.NewInt(5), "w-2"))
	require.Equal(t, "15", bank.BalanceOf(seller).String())

	require.NoError(t, bank.Release(ctx, seller, big.NewInt(5), "w-2"))
	require.Equal(t, "15", bank.BalanceOf(seller).String(), "a reference pays once")

	require.ErrorIs(t, bank.Release(ctx, seller, big.NewInt(0), "w-3"), ErrInvalidAmount)

	failure := errors.New("bank offline")
	bank.FailWith(failure)
	require.ErrorIs(t, bank.Release(ctx, seller, big.NewInt(1), "w-4"), failure)
	require.Equal(t, "15", bank.BalanceOf(seller).String())

	bank.FailWith(nil)
	require.NoError(t, bank.Release(ctx, seller, big.NewInt(1), "w-4"))
	require.Equal(t, "16", bank.BalanceOf(seller).String())
}

func noRetryClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 0
	return client
}

func TestHttpRelease(t *testing.T) {
	var received instruction
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("AccessKey"))
		require.Equal(t, "w-1", r.Header.Get(idempotencyKeyHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	h := NewHttp(server.URL, "secret", noRetryClient())
	require.NoError(t, h.Release(context.Background(), seller, big.NewInt(100000000000), "w-1"))
	require.Equal(t, instruction{To: seller, Amount: "100000000000", Reference: "w-1"}, received)
}

func TestHttpReleaseRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	h := NewHttp(server.URL, "", noRetryClient())
	require.ErrorIs(t, h.Release(context.Background(), seller, big.NewInt(1), "w-1"), ErrRejected)
}

func payoutClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 3
	client.RetryWaitMin = time.Millisecond
	client.RetryWaitMax = time.Millisecond
	client.CheckRetry = CheckRetry
	return client
}

func TestHttpReleaseIsNotResentAfterServerError(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	h := NewHttp(server.URL, "", payoutClient())
	require.ErrorIs(t, h.Release(context.Background(), seller, big.NewInt(1), "w-1"), ErrRejected)
	require.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestHttpReleaseRetriesRefusedConnections(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := payoutClient()
	client.RetryMax = 2
	attempts := 0
	client.RequestLogHook = func(_ retryablehttp.Logger, _ *http.Request, attempt int) {
		attempts = attempt + 1
	}

	h := NewHttp(url, "", client)
	require.Error(t, h.Release(context.Background(), seller, big.NewInt(1), "w-1"))
	require.Equal(t, 3, attempts)
}
