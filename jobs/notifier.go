package jobs

import (
	"context"
	"fmt"

	"github.com/soufra-erp/soufra-erp/internal/transfer"
)

// Notifier adapts the queue client to the transfer coordinator's
// notification port. Enqueue failures propagate to the caller, which treats
// them as fire-and-forget.
type Notifier struct {
	client *Client
}

// NewNotifier constructs Notifier.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// TransferRequested notifies the source outlet that stock was requested
// from it.
func (n *Notifier) TransferRequested(ctx context.Context, order transfer.Order) error {
	_, err := n.client.EnqueueNotification(ctx, TaskTypeTransferRequested, NotificationPayload{
		Outlet:         string(order.FromOutlet),
		TransferNumber: order.TransferNumber,
		FromOutlet:     string(order.FromOutlet),
		ToOutlet:       string(order.ToOutlet),
		Priority:       string(order.Priority),
		Message: fmt.Sprintf("Transfer %s requested by %s for %s",
			order.TransferNumber, order.RequestedBy, order.ToOutlet),
	})
	return err
}

// TransferCompleted notifies the receiving outlet that stock arrived.
func (n *Notifier) TransferCompleted(ctx context.Context, order transfer.Order) error {
	_, err := n.client.EnqueueNotification(ctx, TaskTypeTransferCompleted, NotificationPayload{
		Outlet:         string(order.ToOutlet),
		TransferNumber: order.TransferNumber,
		FromOutlet:     string(order.FromOutlet),
		ToOutlet:       string(order.ToOutlet),
		Priority:       string(order.Priority),
		Message: fmt.Sprintf("Transfer %s from %s completed",
			order.TransferNumber, order.FromOutlet),
	})
	return err
}
