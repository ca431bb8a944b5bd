package bot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/shop-bot/internal/models"
	"github.com/xaenox/shop-bot/internal/session"
	"github.com/xaenox/shop-bot/internal/storage"
)

// finalizeOrder turns the cart into one order per owning seller. Errors are
// returned to HandleMessage, which clears the session and apologizes.
func (b *Bot) finalizeOrder(ctx context.Context, t *turn, option session.ShippingOption) (bool, error) {
	cart, err := b.storage.GetCart(ctx, t.customer.ID)
	if err != nil {
		return false, fmt.Errorf("loading cart: %w", err)
	}
	if len(cart) == 0 {
		b.sessions.Clear(t.customer.ID)
		b.send(ctx, t, msgCartEmpty)
		return true, nil
	}

	address, err := b.storage.GetDefaultAddress(ctx, t.customer.ID)
	if err != nil {
		return false, fmt.Errorf("loading delivery address: %w", err)
	}

	short, err := b.reserveStock(ctx, cart)
	if errors.Is(err, storage.ErrInsufficientStock) {
		return b.rejectShortCart(ctx, t, short)
	}
	if err != nil {
		return false, err
	}

	var sellers []int64
	lines := make(map[int64][]*models.CartItem)
	for _, item := range cart {
		if _, seen := lines[item.SellerID]; !seen {
			sellers = append(sellers, item.SellerID)
		}
		lines[item.SellerID] = append(lines[item.SellerID], item)
	}

	orders := make([]*models.Order, 0, len(sellers))
	var grandTotal int64
	for _, sellerID := range sellers {
		order := &models.Order{
			BuyerID:        t.customer.ID,
			SellerID:       sellerID,
			AddressID:      address.ID,
			TotalAmount:    cartSubtotal(lines[sellerID]),
			ShippingMethod: option.MethodTag,
			Status:         models.OrderPending,
			CreatedAt:      b.now(),
		}
		if err := b.storage.CreateOrder(ctx, order); err != nil {
			return false, fmt.Errorf("creating order for seller %d: %w", sellerID, err)
		}

		for _, line := range lines[sellerID] {
			item := &models.OrderItem{
				OrderID:   order.ID,
				ProductID: line.ProductID,
				Name:      line.Name,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			}
			if err := b.storage.CreateOrderItem(ctx, item); err != nil {
				return false, fmt.Errorf("creating order item: %w", err)
			}
		}

		orders = append(orders, order)
		grandTotal += order.TotalAmount
	}

	if err := b.storage.ClearCart(ctx, t.customer.ID); err != nil {
		return false, fmt.Errorf("clearing cart: %w", err)
	}
	b.sessions.Clear(t.customer.ID)

	b.logger.Info("Orders created",
		zap.Int64("user_id", t.customer.ID),
		zap.Int("orders", len(orders)),
		zap.Int64("total", grandTotal))

	b.send(ctx, t, fmt.Sprintf(msgOrderConfirmed,
		formatCount(len(orders)), formatAmount(grandTotal), option.DisplayName, address.FullAddress))

	b.sendInvoices(t, orders)
	return true, nil
}

// reserveStock takes every cart line out of stock before any order exists.
// On failure the lines already taken are given back and, for a shortage, the
// short line is returned.
func (b *Bot) reserveStock(ctx context.Context, cart []*models.CartItem) (*models.CartItem, error) {
	for i, line := range cart {
		err := b.storage.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err == nil {
			continue
		}
		for _, taken := range cart[:i] {
			if rerr := b.storage.RestoreStock(ctx, taken.ProductID, taken.Quantity); rerr != nil {
				b.logger.Error("Failed to restore reserved stock",
					zap.Int64("product_id", taken.ProductID),
					zap.Int("quantity", taken.Quantity),
					zap.Error(rerr))
			}
		}
		if errors.Is(err, storage.ErrInsufficientStock) {
			return line, err
		}
		return nil, fmt.Errorf("reserving stock for product %d: %w", line.ProductID, err)
	}
	return nil, nil
}

// rejectShortCart empties a cart that can no longer be fulfilled and tells
// the customer what is left of the short product.
func (b *Bot) rejectShortCart(ctx context.Context, t *turn, short *models.CartItem) (bool, error) {
	left := 0
	if product, err := b.storage.GetProduct(ctx, short.ProductID); err == nil {
		left = product.Stock
	}

	b.logger.Info("Order rejected, stock changed",
		zap.Int64("user_id", t.customer.ID),
		zap.Int64("product_id", short.ProductID),
		zap.Int("wanted", short.Quantity),
		zap.Int("left", left))

	if err := b.storage.ClearCart(ctx, t.customer.ID); err != nil {
		return false, fmt.Errorf("clearing cart: %w", err)
	}
	b.sessions.Clear(t.customer.ID)
	b.send(ctx, t, fmt.Sprintf(msgStockChanged, short.Name, formatCount(left)))
	return true, nil
}

// sendInvoices renders and delivers invoices in the background. Failures are
// only logged; the customer already has the confirmation.
func (b *Bot) sendInvoices(t *turn, orders []*models.Order) {
	if b.invoices == nil || len(orders) == 0 {
		return
	}

	b.background.Add(1)
	go func() {
		defer b.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.InvoiceTimeout)
		defer cancel()

		for _, order := range orders {
			url, err := b.invoices.InvoiceURL(ctx, order.ID)
			if err != nil {
				b.logger.Warn("Failed to render invoice", zap.Int64("order_id", order.ID), zap.Error(err))
				continue
			}
			b.sendImage(ctx, t, fmt.Sprintf(msgInvoiceCaption, order.ID), url)
		}
	}()
}
