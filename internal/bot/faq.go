package bot

import (
	"context"
	"fmt"

	"github.com/xaenox/shop-bot/internal/models"
)

// handleFAQ answers from the parent seller's FAQ list when one matches.
func (b *Bot) handleFAQ(ctx context.Context, t *turn) (bool, error) {
	entries, err := b.storage.ListFAQs(ctx, t.parentID, b.cfg.MaxFAQs)
	if err != nil {
		return false, fmt.Errorf("listing FAQs: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}

	faqs := make([]models.FAQ, 0, len(entries))
	for _, f := range entries {
		faqs = append(faqs, *f)
	}

	match := b.ai.FindMatchingFAQ(ctx, t.text, faqs)
	if match == nil {
		return false, nil
	}
	b.send(ctx, t, match.Answer)
	return true, nil
}
