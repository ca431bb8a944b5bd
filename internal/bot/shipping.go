package bot

import (
	"fmt"
	"strings"

	"github.com/xaenox/shop-bot/internal/ai"
	"github.com/xaenox/shop-bot/internal/models"
	"github.com/xaenox/shop-bot/internal/session"
)

// shippingOptions lists the enabled methods in fixed order. Free shipping is
// only offered once the subtotal reaches the seller's threshold.
func shippingOptions(cfg models.ShippingSettings, subtotal int64) []session.ShippingOption {
	var tags []string
	if cfg.PishtazEnabled {
		tags = append(tags, models.ShippingPishtaz)
	}
	if cfg.PostEnabled {
		tags = append(tags, models.ShippingPost)
	}
	if cfg.CourierEnabled {
		tags = append(tags, models.ShippingCourier)
	}
	if cfg.FreeEnabled && subtotal >= cfg.FreeThreshold {
		tags = append(tags, models.ShippingFree)
	}

	options := make([]session.ShippingOption, 0, len(tags))
	for i, tag := range tags {
		options = append(options, session.ShippingOption{
			Ordinal:     i + 1,
			DisplayName: shippingNames[tag],
			MethodTag:   tag,
		})
	}
	return options
}

func shippingMenu(options []session.ShippingOption) string {
	lines := make([]string, 0, len(options))
	for _, o := range options {
		lines = append(lines, fmt.Sprintf("%s. %s", formatCount(o.Ordinal), o.DisplayName))
	}
	return strings.Join(lines, "\n")
}

func pickShipping(options []session.ShippingOption, reply string) (session.ShippingOption, bool) {
	n, ok := ai.LeadingInt(reply)
	if !ok {
		return session.ShippingOption{}, false
	}
	for _, o := range options {
		if o.Ordinal == n {
			return o, true
		}
	}
	return session.ShippingOption{}, false
}

func cartSubtotal(cart []*models.CartItem) int64 {
	var total int64
	for _, item := range cart {
		total += item.Total()
	}
	return total
}
