// Package cashflow delivers settled installments to the cash-flow module.
package cashflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
)

// RetryQueue schedules a failed delivery for another attempt.
type RetryQueue interface {
	EnqueueCashFlowRetry(ctx context.Context, entry Entry) error
}

// Client posts entries to the cash-flow webhook. It implements billing.CashFlowSync.
type Client struct {
	webhookURL string
	httpClient *http.Client
	retry      RetryQueue
	logger     *slog.Logger
}

// NewClient constructs a new client. An empty webhookURL disables delivery.
func NewClient(webhookURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// SetRetryQueue enables background redelivery of failed syncs.
func (c *Client) SetRetryQueue(q RetryQueue) {
	c.retry = q
}

// Sync delivers one settlement. Failures are reported, never raised; when a
// retry queue is configured the entry is also queued for redelivery.
func (c *Client) Sync(ctx context.Context, req billing.CashFlowSyncRequest) billing.CashFlowSyncResult {
	entry := NewEntry(req)
	if err := c.Deliver(ctx, entry); err != nil {
		if c.retry != nil {
			if qerr := c.retry.EnqueueCashFlowRetry(ctx, entry); qerr != nil {
				c.logger.WarnContext(ctx, "cash-flow retry enqueue failed",
					slog.Int64("installment_id", entry.InstallmentID),
					slog.Any("error", qerr),
				)
			}
		}
		return billing.CashFlowSyncResult{Error: err.Error()}
	}
	return billing.CashFlowSyncResult{Success: true}
}

// Deliver posts entry to the webhook.
func (c *Client) Deliver(ctx context.Context, entry Entry) error {
	if c.webhookURL == "" {
		c.logger.DebugContext(ctx, "cash-flow webhook disabled", slog.Int64("installment_id", entry.InstallmentID))
		return nil
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", entry.IdempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cash-flow webhook: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("cash-flow webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
