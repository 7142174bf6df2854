// Package events publishes completed-sale notifications for downstream
// consumers (receipt printers, inventory sync). Publishing is best-effort:
// the sale is already committed by the time an event goes out.
package events

import (
	"context"

	"salepoint/internal/domain"
)

type Publisher interface {
	PublishSale(ctx context.Context, event domain.SaleEvent) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) PublishSale(_ context.Context, _ domain.SaleEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
