// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/config"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

const maxRetryDelay = 30 * time.Second

// Outcome summarizes a finished deployment run for operators
type Outcome struct {
	Network         string   `json:"network"`
	ContractName    string   `json:"contract_name"`
	State           string   `json:"state"`
	Kind            string   `json:"kind,omitempty"`
	Severity        string   `json:"severity,omitempty"`
	Error           string   `json:"error,omitempty"`
	ContractAddress string   `json:"contract_address,omitempty"`
	TransactionHash string   `json:"transaction_hash,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Failed reports whether the run ended in a fatal state
func (o Outcome) Failed() bool {
	return o.Kind != ""
}

// WebhookPayload is the body posted to the webhook
type WebhookPayload struct {
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Data      Outcome   `json:"data"`
	Version   string    `json:"version"`
}

// WebhookNotifier posts deployment outcomes to an operator webhook
type WebhookNotifier struct {
	config     config.NotificationConfig
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewWebhookNotifier creates a notifier. It is disabled without a URL.
func NewWebhookNotifier(cfg config.NotificationConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	return &WebhookNotifier{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     utils.GetLogger().WithField("component", "webhook_notifier"),
	}
}

// Enabled reports whether a webhook URL is configured
func (n *WebhookNotifier) Enabled() bool {
	return n.config.WebhookURL != ""
}

// Notify posts the outcome, retrying with exponential backoff. Successful runs
// are only reported when configured to.
func (n *WebhookNotifier) Notify(ctx context.Context, outcome Outcome) error {
	if !n.Enabled() || (!outcome.Failed() && !n.config.NotifyOnSuccess) {
		return nil
	}

	eventType := "deployment_succeeded"
	if outcome.Failed() {
		eventType = "deployment_failed"
	}
	body, err := json.Marshal(&WebhookPayload{
		Type:      eventType,
		Source:    "rsk-contract-deployer",
		Timestamp: time.Now().UTC(),
		Data:      outcome,
		Version:   "1.0",
	})
	if err != nil {
		return utils.WrapError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err)
	}

	var lastErr error
	for attempt := 1; attempt <= n.config.RetryAttempts; attempt++ {
		if attempt > 1 {
			delay := n.retryDelay(attempt)
			n.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay,
				"error":   lastErr,
			}).Warn("Webhook attempt failed, retrying")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return utils.WrapError(utils.ErrCodeNotification, "Webhook cancelled", ctx.Err())
			}
		}

		start := time.Now()
		status, err := n.send(ctx, body)
		if err == nil {
			n.logger.WithFields(logrus.Fields{
				"type":          eventType,
				"status_code":   status,
				"response_time": time.Since(start),
			}).Debug("Webhook sent")
			return nil
		}
		lastErr = err
	}

	n.logger.WithError(lastErr).Error("Webhook failed")
	return lastErr
}

func (n *WebhookNotifier) send(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, utils.WrapError(utils.ErrCodeNotification, "Failed to create webhook request", err)
	}

	for key, value := range n.config.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "RSK-Contract-Deployer/1.0")
	req.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, utils.WrapError(utils.ErrCodeNotification, "Failed to send webhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, utils.NewAppError(utils.ErrCodeNotification, "Webhook returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, snippet))
	}
	return resp.StatusCode, nil
}

// retryDelay doubles the base delay per attempt up to maxRetryDelay
func (n *WebhookNotifier) retryDelay(attempt int) time.Duration {
	delay := time.Duration(int64(n.config.RetryDelay) << uint(attempt-2))
	if delay > maxRetryDelay || delay < 0 {
		delay = maxRetryDelay
	}
	return delay
}
