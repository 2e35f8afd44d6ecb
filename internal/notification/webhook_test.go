package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/rsk-contract-deployer/internal/config"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

func TestWebhookNotifier(t *testing.T) {
	failure := Outcome{
		Network:         "rsk-testnet",
		ContractName:    "FakeProductIdentification",
		State:           "failed",
		Kind:            utils.ErrCodePersistence,
		Severity:        "manual_recovery_required",
		ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		TransactionHash: "0xabc1",
	}

	t.Run("posts failures", func(t *testing.T) {
		var got WebhookPayload
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "secret", r.Header.Get("X-Token"))
			assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		n := NewWebhookNotifier(config.NotificationConfig{
			WebhookURL: srv.URL,
			Headers:    map[string]string{"X-Token": "secret"},
		})
		require.NoError(t, n.Notify(context.Background(), failure))
		assert.Equal(t, "deployment_failed", got.Type)
		assert.Equal(t, failure, got.Data)
		t.Logf("✓ Webhook delivered %s", got.Type)
	})

	t.Run("skips success unless asked", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		}))
		defer srv.Close()

		success := Outcome{Network: "rsk-testnet", State: "done"}
		require.NoError(t, NewWebhookNotifier(config.NotificationConfig{WebhookURL: srv.URL}).Notify(context.Background(), success))
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

		cfg := config.NotificationConfig{WebhookURL: srv.URL, NotifyOnSuccess: true}
		require.NoError(t, NewWebhookNotifier(cfg).Notify(context.Background(), success))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("retries", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		n := NewWebhookNotifier(config.NotificationConfig{
			WebhookURL:    srv.URL,
			RetryAttempts: 3,
			RetryDelay:    time.Millisecond,
		})
		require.NoError(t, n.Notify(context.Background(), failure))
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("gives up", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		n := NewWebhookNotifier(config.NotificationConfig{WebhookURL: srv.URL, RetryAttempts: 2, RetryDelay: time.Millisecond})
		err := n.Notify(context.Background(), failure)
		require.Error(t, err)
		assert.Equal(t, utils.ErrCodeNotification, utils.CodeOf(err))
	})

	t.Run("disabled", func(t *testing.T) {
		n := NewWebhookNotifier(config.NotificationConfig{})
		assert.False(t, n.Enabled())
		assert.NoError(t, n.Notify(context.Background(), failure))
	})
}
