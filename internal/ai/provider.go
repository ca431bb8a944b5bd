// Package ai hides the interchangeable AI backends behind one service with failover.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	ProviderGemini = "gemini"
	ProviderLiara  = "liara"
)

var (
	ErrNoActiveProvider = errors.New("no active AI provider")
	ErrImageDownload    = errors.New("image download failed")
	errEmptyCompletion  = errors.New("empty completion")
)

// Provider is one concrete AI backend.
type Provider interface {
	Name() string
	// Usable reports whether credentials are loaded.
	Usable() bool
	Reply(ctx context.Context, text string) (string, error)
	ExtractDeposit(ctx context.Context, text string) (DepositInfo, error)
	// ExtractDepositFromImage takes an image URL or a data URL.
	ExtractDepositFromImage(ctx context.Context, image string) (DepositInfo, error)
	Classify(ctx context.Context, question, text string) (bool, error)
	Extract(ctx context.Context, instruction, text string) (string, error)
}

// DepositInfo is what could be read off a deposit receipt. Empty means unknown.
type DepositInfo struct {
	Amount          string `json:"amount" jsonschema:"description=Deposited amount digits only"`
	TransactionDate string `json:"transactionDate" jsonschema:"description=Date of the transaction as printed"`
	TransactionTime string `json:"transactionTime" jsonschema:"description=Time of the transaction as printed"`
	AccountSource   string `json:"accountSource" jsonschema:"description=Source card or account number or bank"`
	PaymentMethod   string `json:"paymentMethod" jsonschema:"description=card_to_card, transfer, satna, paya or other"`
	ReferenceID     string `json:"referenceId" jsonschema:"description=Tracking or reference number"`
}

// Complete reports whether the mandatory fields are all present.
func (d DepositInfo) Complete() bool {
	return strings.TrimSpace(d.Amount) != "" &&
		strings.TrimSpace(d.ReferenceID) != "" &&
		strings.TrimSpace(d.TransactionDate) != ""
}

type chatRequest struct {
	System     string
	User       string
	Image      string
	MaxTokens  int
	JSON       bool
	SchemaName string
	Schema     any
}

type completer interface {
	complete(ctx context.Context, req chatRequest) (string, error)
}

// chatProvider implements Provider on top of a chat-completion backend; the
// concrete providers only differ in their completer.
type chatProvider struct {
	name      string
	usable    bool
	completer completer
	logger    *zap.Logger
}

func (p *chatProvider) Name() string { return p.name }

func (p *chatProvider) Usable() bool { return p.usable && p.completer != nil }

const replySystemPrompt = `You are the friendly WhatsApp assistant of an online shop.
Answer in short, colloquial Persian. Never exceed 200 characters.
Do not invent prices, stock or order details.`

func (p *chatProvider) Reply(ctx context.Context, text string) (string, error) {
	out, err := p.completer.complete(ctx, chatRequest{
		System:    replySystemPrompt,
		User:      text,
		MaxTokens: 200,
	})
	if err != nil {
		return "", fmt.Errorf("%s reply: %w", p.name, err)
	}
	return out, nil
}

const depositSystemPrompt = `You read Iranian bank deposit receipts (card to card, transfer, satna, paya).
Return a JSON object with exactly these string fields:
amount, transactionDate, transactionTime, accountSource, paymentMethod, referenceId.
amount contains digits only (rial or toman as printed, no separators).
Use an empty string for anything you cannot read. Output JSON only.`

func (p *chatProvider) ExtractDeposit(ctx context.Context, text string) (DepositInfo, error) {
	return p.extractDeposit(ctx, chatRequest{
		System: depositSystemPrompt,
		User:   "Receipt text:\n" + text,
	})
}

func (p *chatProvider) ExtractDepositFromImage(ctx context.Context, image string) (DepositInfo, error) {
	return p.extractDeposit(ctx, chatRequest{
		System: depositSystemPrompt,
		User:   "Read the receipt in this image.",
		Image:  image,
	})
}

func (p *chatProvider) extractDeposit(ctx context.Context, req chatRequest) (DepositInfo, error) {
	req.MaxTokens = 300
	req.JSON = true
	req.SchemaName = "deposit_info"
	req.Schema = depositSchema

	out, err := p.completer.complete(ctx, req)
	if err != nil {
		return DepositInfo{}, fmt.Errorf("%s deposit extraction: %w", p.name, err)
	}

	info, err := parseDepositInfo(out)
	if err != nil {
		p.logger.Warn("Failed to parse deposit extraction",
			zap.String("provider", p.name),
			zap.String("response", out),
			zap.Error(err))
		return DepositInfo{}, fmt.Errorf("%s deposit extraction: %w", p.name, err)
	}
	return info, nil
}

const classifySystemPrompt = `You are a strict classifier. Answer with a single word: yes or no.`

func (p *chatProvider) Classify(ctx context.Context, question, text string) (bool, error) {
	out, err := p.completer.complete(ctx, chatRequest{
		System:    classifySystemPrompt,
		User:      question + "\n\nMessage:\n" + text,
		MaxTokens: 5,
	})
	if err != nil {
		return false, fmt.Errorf("%s classify: %w", p.name, err)
	}
	return parseYesNo(out), nil
}

func (p *chatProvider) Extract(ctx context.Context, instruction, text string) (string, error) {
	out, err := p.completer.complete(ctx, chatRequest{
		System:    instruction + "\nIf nothing applies answer NONE. Output only the answer.",
		User:      text,
		MaxTokens: 60,
	})
	if err != nil {
		return "", fmt.Errorf("%s extract: %w", p.name, err)
	}
	out = strings.Trim(strings.TrimSpace(out), `"'.`)
	if strings.EqualFold(out, "none") {
		return "", nil
	}
	return out, nil
}

func parseYesNo(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "yes") || strings.HasPrefix(s, "بله") || strings.HasPrefix(s, "true")
}

// parseDepositInfo accepts fenced or bare JSON and numeric or null field values.
func parseDepositInfo(raw string) (DepositInfo, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return DepositInfo{}, fmt.Errorf("no JSON object in response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw[start : end+1])))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return DepositInfo{}, err
	}

	str := func(key string) string {
		switch v := fields[key].(type) {
		case string:
			return strings.TrimSpace(v)
		case json.Number:
			return v.String()
		default:
			return ""
		}
	}

	return DepositInfo{
		Amount:          str("amount"),
		TransactionDate: str("transactionDate"),
		TransactionTime: str("transactionTime"),
		AccountSource:   str("accountSource"),
		PaymentMethod:   str("paymentMethod"),
		ReferenceID:     str("referenceId"),
	}, nil
}
