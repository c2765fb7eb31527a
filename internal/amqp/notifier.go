package amqp

import (
	"context"

	"findash/internal/core"
	"findash/internal/dashboard"
)

// Notifier adapts the AMQP client to the dashboard's ImportNotifier port.
type Notifier struct {
	client *Client
}

var _ dashboard.ImportNotifier = (*Notifier)(nil)

func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) ImportCompleted(ctx context.Context, datasetID string, file core.ImportedFile) error {
	event := NewImportEvent(datasetID, file.ID, file.FileName, file.TransactionCount)
	return n.client.PublishImportEvent(ctx, event)
}
