package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/xaenox/shop-bot/internal/models"
	"github.com/xaenox/shop-bot/internal/storage"
	"github.com/xaenox/shop-bot/internal/whatsapp"
)

// register resolves the sender to a customer. It reports handled when the
// message was consumed by the registration dialogue itself.
func (b *Bot) register(ctx context.Context, t *turn) (bool, error) {
	address := t.msg.From

	user, err := b.storage.GetUserByChannelAddress(ctx, address)
	if err == nil {
		t.customer = user
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("looking up sender: %w", err)
	}

	phone := whatsapp.NormalizePhone(address)
	if phone != "" {
		user, err = b.storage.GetUserByPhone(ctx, phone)
		switch {
		case err == nil:
			if err := b.storage.UpdateChannelAddress(ctx, user.ID, address); err != nil {
				return false, fmt.Errorf("linking channel address: %w", err)
			}
			user.ChannelAddress = address
			t.customer = user
			b.logger.Info("Linked WhatsApp address to existing account",
				zap.Int64("user_id", user.ID),
				zap.String("phone", phone))
			return false, nil
		case !errors.Is(err, storage.ErrNotFound):
			return false, fmt.Errorf("looking up sender by phone: %w", err)
		}
	}

	first, last, ok := parseFullName(t.text)
	if !ok {
		b.send(ctx, t, msgAskFullName)
		return true, nil
	}

	now := b.now()
	customer := &models.User{
		FirstName:      first,
		LastName:       last,
		Phone:          phone,
		ChannelAddress: address,
		Role:           models.RoleCustomer,
		ParentID:       t.seller.SellerID,
		CreatedAt:      now,
	}
	if err := b.storage.CreateUser(ctx, customer); err != nil {
		return false, fmt.Errorf("creating customer: %w", err)
	}
	t.customer = customer

	if err := b.storage.GrantSubscription(ctx, storage.TrialSubscription(customer.ID, b.cfg.TrialDays, now)); err != nil {
		b.logger.Error("Failed to grant trial subscription",
			zap.Int64("user_id", customer.ID),
			zap.Error(err))
	}

	b.logger.Info("Registered customer",
		zap.Int64("user_id", customer.ID),
		zap.Int64("seller_id", t.seller.SellerID))

	b.send(ctx, t, welcomeText(t.seller.WelcomeTemplate, customer.FullName()))
	return true, nil
}

// notNameWords are greetings and small talk that often open a first message.
// Text containing any of them is never taken as a name.
var notNameWords = map[string]bool{
	"سلام": true, "درود": true, "خوبی": true, "خوبید": true, "خوبین": true,
	"چطوری": true, "چطورید": true, "وقت": true, "بخیر": true, "صبح": true,
	"عصر": true, "شب": true, "ممنون": true, "مرسی": true, "لطفا": true,
	"ببخشید": true, "قیمت": true, "دارید": true, "هست": true, "هستید": true,
	"hi": true, "hello": true, "hey": true, "thanks": true,
}

var nameNormalizer = strings.NewReplacer("\u200c", "", "ي", "ی", "ك", "ک", "ً", "")

// parseFullName accepts two to four words made of letters only. The first
// word is the first name and the rest the last name.
func parseFullName(text string) (first, last string, ok bool) {
	words := strings.Fields(text)
	if len(words) < 2 || len(words) > 4 {
		return "", "", false
	}
	for _, w := range words {
		if notNameWords[strings.ToLower(nameNormalizer.Replace(w))] {
			return "", "", false
		}
		for _, r := range w {
			if !unicode.IsLetter(r) && !unicode.IsMark(r) && r != '\u200c' {
				return "", "", false
			}
		}
	}
	return words[0], strings.Join(words[1:], " "), true
}
