package syncer

import (
	"context"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

// HandleWebhookEvent routes a raw webhook payload to the owning account's
// adapter and ingests the normalized message. Returns the stored message,
// or nil when the platform has no webhook support, the payload shape is
// unknown, or the message was a duplicate. Adapter errors are logged and
// swallowed: a webhook receiver must always acknowledge, since platforms
// retry or disable endpoints that keep failing.
func (m *Manager) HandleWebhookEvent(ctx context.Context, p platform.Type, accountID string, event map[string]interface{}) *platform.Message {
	ma := m.account(p, accountID)
	if ma == nil {
		m.logger.WithFields(logging.Fields{
			"platform":   p,
			"account_id": accountID,
		}).Warn("Webhook for uninitialized account")
		return nil
	}

	acct, provider := ma.snapshot()
	ingester, ok := provider.(platform.WebhookIngester)
	if !ok {
		return nil
	}

	msg, err := ingester.HandleWebhookEvent(ctx, event, acct.AccountID, acct.UserID, acct.OrgID)
	if err != nil {
		if m.metrics != nil {
			m.metrics.WebhookEvents.WithLabelValues(string(p), "error").Inc()
		}
		m.logger.WithFields(logging.Fields{
			"platform":   p,
			"account_id": accountID,
			"error":      err.Error(),
		}).Warn("Webhook event rejected by adapter")
		return nil
	}
	if msg == nil {
		if m.metrics != nil {
			m.metrics.WebhookEvents.WithLabelValues(string(p), "ignored").Inc()
		}
		return nil
	}

	stored, err := m.ingest(ctx, msg)
	if err != nil {
		if m.metrics != nil {
			m.metrics.WebhookEvents.WithLabelValues(string(p), "error").Inc()
		}
		m.logger.WithFields(logging.Fields{
			"platform":   p,
			"account_id": accountID,
			"error":      err.Error(),
		}).Warn("Failed to store webhook message")
		return nil
	}
	if !stored {
		if m.metrics != nil {
			m.metrics.WebhookEvents.WithLabelValues(string(p), "duplicate").Inc()
		}
		return nil
	}

	if m.metrics != nil {
		m.metrics.WebhookEvents.WithLabelValues(string(p), "stored").Inc()
	}
	return msg
}
