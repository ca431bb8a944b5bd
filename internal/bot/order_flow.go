package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/shop-bot/internal/models"
	"github.com/xaenox/shop-bot/internal/session"
	"github.com/xaenox/shop-bot/internal/storage"
	"github.com/xaenox/shop-bot/internal/whatsapp"
)

// stateHandler runs one step of the ordering dialogue. It reports whether
// the message was consumed; false lets the generic reply answer it.
type stateHandler func(ctx context.Context, t *turn) (bool, error)

func (b *Bot) handleOrderFlow(ctx context.Context, t *turn) (bool, error) {
	handler, ok := b.states[t.session.State]
	if !ok {
		b.logger.Warn("No handler for session state, resetting",
			zap.Int64("user_id", t.customer.ID),
			zap.String("state", string(t.session.State)))
		b.sessions.Clear(t.customer.ID)
		return false, nil
	}
	return handler(ctx, t)
}

func (b *Bot) onIdle(ctx context.Context, t *turn) (bool, error) {
	if !b.ai.IsProductOrderRequest(ctx, t.text) {
		return false, nil
	}

	name := b.ai.ExtractProductName(ctx, t.text)
	if name == "" {
		b.send(ctx, t, msgAskProductName)
		return true, nil
	}

	products, err := b.storage.SearchProducts(ctx, t.parentID, name)
	if err != nil {
		return false, fmt.Errorf("searching products: %w", err)
	}

	switch len(products) {
	case 0:
		b.sessions.Clear(t.customer.ID)
		b.send(ctx, t, fmt.Sprintf(msgProductNotFound, name))
		return true, nil
	case 1:
	default:
		b.sessions.Clear(t.customer.ID)
		names := make([]string, 0, len(products))
		for _, p := range products {
			names = append(names, "• "+p.Name)
		}
		b.send(ctx, t, fmt.Sprintf(msgProductAmbiguous, strings.Join(names, "\n")))
		return true, nil
	}

	product := products[0]
	b.sessions.Update(t.customer.ID, func(s *session.Session) {
		s.State = session.StateAskingQuantity
		s.CurrentProduct = product
	})

	text := fmt.Sprintf(msgProductFound, product.Name, formatAmount(product.Price))
	if product.ImageURL != "" {
		b.sendImage(ctx, t, text, product.ImageURL)
	} else {
		b.send(ctx, t, text)
	}
	return true, nil
}

func (b *Bot) onAskingQuantity(ctx context.Context, t *turn) (bool, error) {
	current := t.session.CurrentProduct
	if current == nil {
		b.sessions.Clear(t.customer.ID)
		return false, nil
	}

	quantity := b.ai.ExtractQuantity(ctx, t.text)
	if quantity <= 0 {
		b.send(ctx, t, msgAskQuantityAgain)
		return true, nil
	}

	product, err := b.storage.GetProduct(ctx, current.ID)
	if err != nil {
		return false, fmt.Errorf("reloading product %d: %w", current.ID, err)
	}
	if !product.Active {
		return false, fmt.Errorf("product %d is no longer active", product.ID)
	}

	inCart, err := b.cartQuantity(ctx, t.customer.ID, product.ID)
	if err != nil {
		return false, err
	}
	available := product.Stock - inCart
	switch {
	case available <= 0 && inCart > 0:
		b.sessions.Update(t.customer.ID, func(s *session.Session) {
			s.State = session.StateAskingMoreProducts
			s.CurrentProduct = nil
		})
		b.send(ctx, t, fmt.Sprintf(msgStockAllInCart, formatCount(inCart), product.Name))
		return true, nil
	case quantity > available && inCart > 0:
		b.send(ctx, t, fmt.Sprintf(msgInsufficientStockInCart, formatCount(inCart), formatCount(available)))
		return true, nil
	case quantity > available:
		b.send(ctx, t, fmt.Sprintf(msgInsufficientStock, formatCount(available)))
		return true, nil
	}

	item := &models.CartItem{
		UserID:    t.customer.ID,
		ProductID: product.ID,
		SellerID:  product.SellerID,
		Name:      product.Name,
		Quantity:  quantity,
		UnitPrice: product.Price,
		CreatedAt: b.now(),
	}
	if err := b.storage.AddCartItem(ctx, item); err != nil {
		return false, fmt.Errorf("adding to cart: %w", err)
	}

	b.sessions.Update(t.customer.ID, func(s *session.Session) {
		s.State = session.StateAskingMoreProducts
		s.CurrentProduct = nil
	})
	b.send(ctx, t, fmt.Sprintf(msgAddedToCart, formatCount(quantity), product.Name, formatAmount(item.Total())))
	return true, nil
}

// cartQuantity is how many units of productID the customer already holds.
func (b *Bot) cartQuantity(ctx context.Context, userID, productID int64) (int, error) {
	cart, err := b.storage.GetCart(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("loading cart: %w", err)
	}
	var n int
	for _, item := range cart {
		if item.ProductID == productID {
			n += item.Quantity
		}
	}
	return n, nil
}

func (b *Bot) onAskingMoreProducts(ctx context.Context, t *turn) (bool, error) {
	if b.ai.IsPositiveResponse(ctx, t.text) {
		b.sessions.Update(t.customer.ID, func(s *session.Session) {
			s.State = session.StateIdle
		})
		b.send(ctx, t, msgAskNextProduct)
		return true, nil
	}

	_, err := b.storage.GetDefaultAddress(ctx, t.customer.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.sessions.Update(t.customer.ID, func(s *session.Session) {
			s.State = session.StateAskingAddressTitle
			s.Address = session.AddressDraft{}
		})
		b.send(ctx, t, msgAskAddressTitle)
		return true, nil
	case err != nil:
		return false, fmt.Errorf("loading address: %w", err)
	}
	return b.offerShipping(ctx, t, "")
}

func (b *Bot) onAddressTitle(ctx context.Context, t *turn) (bool, error) {
	b.sessions.Update(t.customer.ID, func(s *session.Session) {
		s.Address.Title = t.text
		s.State = session.StateAskingAddressFull
	})
	b.send(ctx, t, msgAskAddressFull)
	return true, nil
}

func (b *Bot) onAddressFull(ctx context.Context, t *turn) (bool, error) {
	b.sessions.Update(t.customer.ID, func(s *session.Session) {
		s.Address.FullAddress = t.text
		s.State = session.StateAskingAddressPostal
	})
	b.send(ctx, t, msgAskPostalCode)
	return true, nil
}

func (b *Bot) onAddressPostalCode(ctx context.Context, t *turn) (bool, error) {
	draft := t.session.Address
	if draft.Title == "" || draft.FullAddress == "" {
		b.sessions.Clear(t.customer.ID)
		return false, nil
	}

	address := &models.Address{
		UserID:      t.customer.ID,
		Title:       draft.Title,
		FullAddress: draft.FullAddress,
		PostalCode:  whatsapp.NormalizeDigits(t.text),
		IsDefault:   true,
		CreatedAt:   b.now(),
	}
	if err := b.storage.CreateAddress(ctx, address); err != nil {
		return false, fmt.Errorf("saving address: %w", err)
	}

	b.sessions.Update(t.customer.ID, func(s *session.Session) {
		s.Address = session.AddressDraft{}
	})
	return b.offerShipping(ctx, t, msgAddressSaved+"\n")
}

// offerShipping presents the numbered shipping menu for the current cart.
func (b *Bot) offerShipping(ctx context.Context, t *turn, prefix string) (bool, error) {
	cart, err := b.storage.GetCart(ctx, t.customer.ID)
	if err != nil {
		return false, fmt.Errorf("loading cart: %w", err)
	}
	if len(cart) == 0 {
		b.sessions.Clear(t.customer.ID)
		b.send(ctx, t, prefix+msgCartEmpty)
		return true, nil
	}

	settings, err := b.storage.GetSellerSettings(ctx, t.parentID)
	if err != nil {
		return false, fmt.Errorf("loading shipping settings: %w", err)
	}

	options := shippingOptions(settings.Shipping, cartSubtotal(cart))
	if len(options) == 0 {
		b.sessions.Clear(t.customer.ID)
		b.send(ctx, t, prefix+msgNoShipping)
		return true, nil
	}

	b.sessions.Update(t.customer.ID, func(s *session.Session) {
		s.State = session.StateAskingShippingMethod
		s.AvailableShippingMethods = options
		s.SelectedShippingMethod = ""
	})
	b.send(ctx, t, prefix+fmt.Sprintf(msgShippingMenu, shippingMenu(options)))
	return true, nil
}

func (b *Bot) onShippingMethod(ctx context.Context, t *turn) (bool, error) {
	options := t.session.AvailableShippingMethods
	if len(options) == 0 {
		b.sessions.Clear(t.customer.ID)
		return false, nil
	}

	option, ok := pickShipping(options, t.text)
	if !ok {
		b.send(ctx, t, msgInvalidShipping+"\n"+fmt.Sprintf(msgShippingMenu, shippingMenu(options)))
		return true, nil
	}

	b.sessions.Update(t.customer.ID, func(s *session.Session) {
		s.SelectedShippingMethod = option.MethodTag
		s.State = session.StateConfirmingOrder
	})
	return b.finalizeOrder(ctx, t, option)
}
