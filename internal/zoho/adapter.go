package zoho

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/sales"
	"github.com/soufra-erp/soufra-erp/internal/transfer"
)

// MappingStore is the identifier cache surface the adapter needs.
type MappingStore interface {
	ResolveLocationID(ctx context.Context, id outlet.ID) (string, error)
	ResolveItemID(ctx context.Context, sku string) (string, error)
	SaveLocation(ctx context.Context, id outlet.ID, locationID, locationName string) error
	SaveItem(ctx context.Context, sku, itemID, itemName string) error
}

// Adapter translates internal orders into external API calls. It satisfies
// transfer.SyncPort and sales.SyncPort.
type Adapter struct {
	client   *Client
	mappings MappingStore
	logger   *slog.Logger
}

// NewAdapter constructs Adapter.
func NewAdapter(client *Client, mappings MappingStore, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{client: client, mappings: mappings, logger: logger}
}

type transferOrderLine struct {
	ItemID           string  `json:"item_id"`
	Name             string  `json:"name,omitempty"`
	QuantityTransfer float64 `json:"quantity_transfer"`
}

type transferOrderRequest struct {
	TransferOrderNumber string              `json:"transfer_order_number"`
	Date                string              `json:"date"`
	FromLocationID      string              `json:"from_location_id"`
	ToLocationID        string              `json:"to_location_id"`
	LineItems           []transferOrderLine `json:"line_items"`
	IsIntransitOrder    bool                `json:"is_intransit_order"`
}

type transferOrderResponse struct {
	apiEnvelope
	TransferOrder struct {
		TransferOrderID     string `json:"transfer_order_id"`
		TransferOrderNumber string `json:"transfer_order_number"`
	} `json:"transfer_order"`
}

// PushTransferOrder pushes one approved order. Central Kitchen is always the
// external source location: when the internal destination is Central Kitchen
// the external direction is swapped, while the internal ledgers keep the
// original movement. Lines without an item mapping are skipped; the push
// fails only when zero lines could be mapped.
func (a *Adapter) PushTransferOrder(ctx context.Context, order transfer.Order) (transfer.PushOutcome, error) {
	from, to := order.FromOutlet, order.ToOutlet
	if to == outlet.CentralKitchen && from != outlet.CentralKitchen {
		from, to = to, from
	}
	fromID, err := a.mappings.ResolveLocationID(ctx, from)
	if err != nil {
		return transfer.PushOutcome{}, err
	}
	toID, err := a.mappings.ResolveLocationID(ctx, to)
	if err != nil {
		return transfer.PushOutcome{}, err
	}

	var (
		lines   []transferOrderLine
		skipped []string
	)
	for _, item := range order.Items {
		itemID, err := a.mappings.ResolveItemID(ctx, item.ItemCode)
		if errors.Is(err, ErrMissingItemMapping) {
			skipped = append(skipped, item.ItemCode)
			continue
		}
		if err != nil {
			return transfer.PushOutcome{}, err
		}
		lines = append(lines, transferOrderLine{
			ItemID:           itemID,
			Name:             item.ItemName,
			QuantityTransfer: item.Quantity,
		})
	}
	if len(lines) == 0 {
		return transfer.PushOutcome{}, fmt.Errorf("%w: %s", ErrNoMappableItems, order.TransferNumber)
	}

	var resp transferOrderResponse
	err = a.client.Post(ctx, "/transferorders", transferOrderRequest{
		TransferOrderNumber: order.TransferNumber,
		Date:                order.TransferDate.Format("2006-01-02"),
		FromLocationID:      fromID,
		ToLocationID:        toID,
		LineItems:           lines,
	}, &resp)
	if err != nil {
		return transfer.PushOutcome{}, err
	}
	if len(skipped) > 0 {
		a.logger.Info("transfer push skipped unmapped items",
			slog.String("transfer", order.TransferNumber), slog.Any("skipped", skipped))
	}
	return transfer.PushOutcome{
		ExternalID:     resp.TransferOrder.TransferOrderID,
		ExternalNumber: resp.TransferOrder.TransferOrderNumber,
		SkippedItems:   skipped,
	}, nil
}

type invoiceLine struct {
	ItemID   string  `json:"item_id"`
	Name     string  `json:"name,omitempty"`
	Quantity float64 `json:"quantity"`
	Rate     float64 `json:"rate"`
}

type invoiceRequest struct {
	ReferenceNumber string        `json:"reference_number"`
	Date            string        `json:"date"`
	LocationID      string        `json:"location_id"`
	CustomerName    string        `json:"customer_name,omitempty"`
	Discount        float64       `json:"discount,omitempty"`
	LineItems       []invoiceLine `json:"line_items"`
}

type invoiceResponse struct {
	apiEnvelope
	Invoice struct {
		InvoiceID     string `json:"invoice_id"`
		InvoiceNumber string `json:"invoice_number"`
	} `json:"invoice"`
}

// PushInvoice pushes one sales order as an external invoice. Only direct
// lines go out; recipe consumption is internal detail the external system
// never sees.
func (a *Adapter) PushInvoice(ctx context.Context, order sales.Order) (sales.InvoicePush, error) {
	locationID, err := a.mappings.ResolveLocationID(ctx, order.Outlet)
	if err != nil {
		return sales.InvoicePush{}, err
	}

	var (
		lines   []invoiceLine
		skipped []string
	)
	for _, item := range order.Items {
		itemID, err := a.mappings.ResolveItemID(ctx, item.ItemCode)
		if errors.Is(err, ErrMissingItemMapping) {
			skipped = append(skipped, item.ItemCode)
			continue
		}
		if err != nil {
			return sales.InvoicePush{}, err
		}
		lines = append(lines, invoiceLine{
			ItemID:   itemID,
			Name:     item.ItemName,
			Quantity: item.Quantity,
			Rate:     item.UnitPrice,
		})
	}
	if len(lines) == 0 {
		return sales.InvoicePush{}, fmt.Errorf("%w: %s", ErrNoMappableItems, order.OrderNumber)
	}

	var resp invoiceResponse
	err = a.client.Post(ctx, "/invoices", invoiceRequest{
		ReferenceNumber: order.OrderNumber,
		Date:            order.OrderDate.Format("2006-01-02"),
		LocationID:      locationID,
		CustomerName:    order.CustomerName,
		Discount:        order.Summary.Discount,
		LineItems:       lines,
	}, &resp)
	if err != nil {
		return sales.InvoicePush{}, err
	}
	if len(skipped) > 0 {
		a.logger.Info("invoice push skipped unmapped items",
			slog.String("order", order.OrderNumber), slog.Any("skipped", skipped))
	}
	return sales.InvoicePush{
		InvoiceID:     resp.Invoice.InvoiceID,
		InvoiceNumber: resp.Invoice.InvoiceNumber,
	}, nil
}

// MarkInvoiceSent advances an external invoice from draft to sent.
func (a *Adapter) MarkInvoiceSent(ctx context.Context, invoiceID string) error {
	return a.client.Post(ctx, "/invoices/"+invoiceID+"/status/sent", nil, nil)
}

type locationListResponse struct {
	apiEnvelope
	Locations []struct {
		LocationID   string `json:"location_id"`
		LocationName string `json:"location_name"`
	} `json:"locations"`
}

// RefreshLocations re-pulls the external location list into the cache.
// External names that do not resolve to a known outlet are skipped.
func (a *Adapter) RefreshLocations(ctx context.Context) (int, error) {
	var resp locationListResponse
	if err := a.client.Get(ctx, "/locations", &resp); err != nil {
		return 0, err
	}
	saved := 0
	for _, loc := range resp.Locations {
		id, err := outlet.Parse(loc.LocationName)
		if err != nil {
			a.logger.Warn("unknown external location", slog.String("name", loc.LocationName))
			continue
		}
		if err := a.mappings.SaveLocation(ctx, id, loc.LocationID, loc.LocationName); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

type itemListResponse struct {
	apiEnvelope
	Items []struct {
		ItemID string `json:"item_id"`
		Name   string `json:"name"`
		SKU    string `json:"sku"`
	} `json:"items"`
	PageContext struct {
		HasMorePage bool `json:"has_more_page"`
	} `json:"page_context"`
}

// RefreshItems re-pulls the external item list into the cache, page by page.
// Items without a SKU cannot be keyed and are skipped.
func (a *Adapter) RefreshItems(ctx context.Context) (int, error) {
	saved := 0
	for page := 1; ; page++ {
		var resp itemListResponse
		if err := a.client.Get(ctx, fmt.Sprintf("/items?page=%d", page), &resp); err != nil {
			return saved, err
		}
		for _, item := range resp.Items {
			if item.SKU == "" {
				continue
			}
			if err := a.mappings.SaveItem(ctx, item.SKU, item.ItemID, item.Name); err != nil {
				return saved, err
			}
			saved++
		}
		if !resp.PageContext.HasMorePage {
			return saved, nil
		}
	}
}
