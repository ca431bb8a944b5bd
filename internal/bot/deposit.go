package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/xaenox/shop-bot/internal/ai"
	"github.com/xaenox/shop-bot/internal/models"
	"github.com/xaenox/shop-bot/internal/storage"
	"github.com/xaenox/shop-bot/internal/whatsapp"
)

// handleDeposit records deposit receipts sent as an image or as text.
// Anything that does not yield a complete extraction falls through.
func (b *Bot) handleDeposit(ctx context.Context, t *turn) (bool, error) {
	var (
		info ai.DepositInfo
		err  error
	)
	switch {
	case t.msg.ImageURL != "":
		info, err = b.ai.ExtractDepositInfoFromImage(ctx, t.msg.ImageURL)
	case b.ai.IsDepositMessage(ctx, t.text):
		info, err = b.ai.ExtractDepositInfo(ctx, t.text)
	default:
		return false, nil
	}
	if err != nil {
		if errors.Is(err, ai.ErrNoActiveProvider) {
			return false, nil
		}
		return false, fmt.Errorf("extracting deposit: %w", err)
	}

	if !info.Complete() {
		return false, nil
	}
	amount, ok := parseAmount(info.Amount)
	if !ok {
		b.logger.Warn("Unreadable deposit amount",
			zap.Int64("user_id", t.customer.ID),
			zap.String("amount", info.Amount))
		return false, nil
	}
	reference := strings.TrimSpace(whatsapp.NormalizeDigits(info.ReferenceID))

	existing, err := b.storage.FindTransactionByReference(ctx, t.customer.ID, reference)
	switch {
	case err == nil && existing != nil:
		b.send(ctx, t, fmt.Sprintf(msgDepositDuplicate, reference))
		return true, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return false, fmt.Errorf("checking duplicate deposit: %w", err)
	}

	tx := &models.Transaction{
		UserID:          t.customer.ID,
		ApproverID:      t.parentID,
		Amount:          amount,
		ReferenceID:     reference,
		TransactionDate: info.TransactionDate,
		TransactionTime: info.TransactionTime,
		AccountSource:   info.AccountSource,
		PaymentMethod:   info.PaymentMethod,
		ReceiptImageURL: t.msg.ImageURL,
		Status:          models.TransactionPending,
		CreatedAt:       b.now(),
	}
	if err := b.storage.CreateTransaction(ctx, tx); err != nil {
		return false, fmt.Errorf("creating transaction: %w", err)
	}

	balance, err := b.storage.GetBalance(ctx, t.customer.ID)
	if err != nil {
		b.logger.Warn("Failed to read balance", zap.Int64("user_id", t.customer.ID), zap.Error(err))
	}

	b.logger.Info("Deposit submitted",
		zap.Int64("user_id", t.customer.ID),
		zap.Int64("transaction_id", tx.ID),
		zap.Int64("amount", amount))

	b.send(ctx, t, fmt.Sprintf(msgDepositReceived, formatAmount(amount), reference, formatAmount(balance)))
	return true, nil
}

// parseAmount keeps the digits of an extracted amount ("1,500,000 ریال").
// A fractional part is dropped.
func parseAmount(raw string) (int64, bool) {
	raw = dropFraction(whatsapp.NormalizeDigits(raw))
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// dropFraction cuts s at its decimal separator. The Arabic decimal
// separator always counts; a dot only when fewer than three digits follow
// it, since "1.500.000" groups thousands.
func dropFraction(s string) string {
	if i := strings.IndexRune(s, '٫'); i >= 0 {
		return s[:i]
	}
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return s
	}
	digits := 0
	for _, r := range s[i+1:] {
		if !unicode.IsDigit(r) {
			break
		}
		digits++
	}
	if digits < 3 {
		return s[:i]
	}
	return s
}
