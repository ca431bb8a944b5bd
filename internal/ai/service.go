package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/shop-bot/internal/models"
)

// SettingsSource yields the persisted provider settings.
type SettingsSource interface {
	ListAIProviders(ctx context.Context) ([]models.AIProviderSetting, error)
}

// Factory builds a provider from its persisted setting.
type Factory func(setting models.AIProviderSetting) Provider

// DefaultFactories returns the factories for the two supported backends.
func DefaultFactories(gemini, liara ProviderConfig, logger *zap.Logger) map[string]Factory {
	return map[string]Factory{
		ProviderGemini: func(s models.AIProviderSetting) Provider { return NewGeminiProvider(s, gemini, logger) },
		ProviderLiara:  func(s models.AIProviderSetting) Provider { return NewLiaraProvider(s, liara, logger) },
	}
}

type Config struct {
	// Preference orders active providers when more than one is switched on.
	Preference              []string
	ReplyMaxChars           int
	MaxFAQs                 int
	DepositKeywordThreshold int
	ImageMaxBytes           int64
	ImageTimeout            time.Duration
}

func (c *Config) setDefaults() {
	if len(c.Preference) == 0 {
		c.Preference = []string{ProviderGemini, ProviderLiara}
	}
	if c.ReplyMaxChars <= 0 {
		c.ReplyMaxChars = 200
	}
	if c.MaxFAQs <= 0 {
		c.MaxFAQs = 20
	}
	if c.DepositKeywordThreshold <= 0 {
		c.DepositKeywordThreshold = 2
	}
	if c.ImageMaxBytes <= 0 {
		c.ImageMaxBytes = 5 << 20
	}
	if c.ImageTimeout <= 0 {
		c.ImageTimeout = 15 * time.Second
	}
}

// Service is the single entry point the conversation engine uses. It holds
// every provider that has credentials, remembers which one is current, and
// retries a failed call once on another usable provider.
type Service struct {
	settings   SettingsSource
	factories  map[string]Factory
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	mu        sync.RWMutex
	providers map[string]Provider
	current   Provider
}

func NewService(settings SettingsSource, factories map[string]Factory, cfg Config, logger *zap.Logger) *Service {
	cfg.setDefaults()
	return &Service{
		settings:   settings,
		factories:  factories,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.ImageTimeout},
		logger:     logger.Named("ai"),
		providers:  make(map[string]Provider),
	}
}

// Initialize loads provider settings and selects the current provider.
// With no active provider the service stays idle: replies fail with
// ErrNoActiveProvider and classifiers answer negatively.
func (s *Service) Initialize(ctx context.Context) error {
	settings, err := s.settings.ListAIProviders(ctx)
	if err != nil {
		return fmt.Errorf("loading AI provider settings: %w", err)
	}

	providers := make(map[string]Provider, len(settings))
	active := make(map[string]bool, len(settings))
	var order []string
	for _, setting := range settings {
		if strings.TrimSpace(setting.Token) == "" {
			continue
		}
		factory, ok := s.factories[setting.Provider]
		if !ok {
			s.logger.Warn("Unknown AI provider in settings", zap.String("provider", setting.Provider))
			continue
		}
		providers[setting.Provider] = factory(setting)
		active[setting.Provider] = setting.Active
		order = append(order, setting.Provider)
	}

	var current Provider
	for _, name := range s.ordered(order) {
		if p := providers[name]; active[name] && p.Usable() {
			current = p
			break
		}
	}

	s.mu.Lock()
	s.providers = providers
	s.current = current
	s.mu.Unlock()

	if current == nil {
		s.logger.Warn("No active AI provider, running idle", zap.Int("registered", len(providers)))
		return nil
	}
	s.logger.Info("AI provider selected",
		zap.String("provider", current.Name()),
		zap.Int("registered", len(providers)))
	return nil
}

// Run re-reads provider settings every interval until ctx is done.
func (s *Service) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Initialize(ctx); err != nil {
				s.logger.Error("Failed to refresh AI providers", zap.Error(err))
			}
		}
	}
}

// ordered puts names in preference order, unknown names last in their given order.
func (s *Service) ordered(names []string) []string {
	rank := make(map[string]int, len(s.cfg.Preference))
	for i, name := range s.cfg.Preference {
		rank[name] = i
	}
	out := make([]string, 0, len(names))
	for _, name := range s.cfg.Preference {
		for _, n := range names {
			if n == name {
				out = append(out, n)
			}
		}
	}
	for _, n := range names {
		if _, ok := rank[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

func (s *Service) Current() Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Service) IsActive() bool {
	p := s.Current()
	return p != nil && p.Usable()
}

// Providers returns the names of every registered provider in preference order.
func (s *Service) Providers() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	s.mu.RUnlock()
	slices.Sort(names)
	return s.ordered(names)
}

func (s *Service) alternate(primary Provider) Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range s.ordered(names) {
		p := s.providers[name]
		if p.Name() != primary.Name() && p.Usable() {
			return p
		}
	}
	return nil
}

// withFailover runs call on the current provider and, if it fails, once more
// on the alternate provider. The current selection is left unchanged.
func withFailover[T any](ctx context.Context, s *Service, op string, call func(Provider) (T, error)) (T, error) {
	var zero T
	primary := s.Current()
	if primary == nil || !primary.Usable() {
		return zero, ErrNoActiveProvider
	}

	result, err := call(primary)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return zero, err
	}

	alt := s.alternate(primary)
	if alt == nil {
		return zero, err
	}
	s.logger.Warn("AI provider failed, trying alternate",
		zap.String("op", op),
		zap.String("provider", primary.Name()),
		zap.String("alternate", alt.Name()),
		zap.Error(err))

	result, altErr := call(alt)
	if altErr != nil {
		return zero, errors.Join(err, altErr)
	}
	return result, nil
}

// GenerateResponse returns a short localized reply.
func (s *Service) GenerateResponse(ctx context.Context, text string, userID int64) (string, error) {
	reply, err := withFailover(ctx, s, "reply", func(p Provider) (string, error) {
		return p.Reply(ctx, text)
	})
	if err != nil {
		if !errors.Is(err, ErrNoActiveProvider) {
			s.logger.Error("Failed to generate reply", zap.Int64("user_id", userID), zap.Error(err))
		}
		return "", err
	}
	return truncateRunes(strings.TrimSpace(reply), s.cfg.ReplyMaxChars), nil
}

// ExtractDepositInfo returns empty info when extraction fails. Only the
// absence of any active provider is reported as an error.
func (s *Service) ExtractDepositInfo(ctx context.Context, text string) (DepositInfo, error) {
	if !s.IsActive() {
		return DepositInfo{}, ErrNoActiveProvider
	}
	info, err := withFailover(ctx, s, "extract_deposit", func(p Provider) (DepositInfo, error) {
		return p.ExtractDeposit(ctx, text)
	})
	if err != nil {
		s.logger.Warn("Deposit extraction failed", zap.Error(err))
		return DepositInfo{}, nil
	}
	return info, nil
}

// ExtractDepositInfoFromImage downloads the image once and hands it to the
// providers inline. Download and extraction failures are logged apart.
func (s *Service) ExtractDepositInfoFromImage(ctx context.Context, imageURL string) (DepositInfo, error) {
	if !s.IsActive() {
		return DepositInfo{}, ErrNoActiveProvider
	}

	image, err := downloadImage(ctx, s.httpClient, imageURL, s.cfg.ImageMaxBytes)
	if err != nil {
		s.logger.Warn("Failed to download receipt image",
			zap.String("url", imageURL),
			zap.Error(err))
		return DepositInfo{}, nil
	}

	info, err := withFailover(ctx, s, "extract_deposit_image", func(p Provider) (DepositInfo, error) {
		return p.ExtractDepositFromImage(ctx, image)
	})
	if err != nil {
		s.logger.Warn("Receipt image extraction failed",
			zap.String("url", imageURL),
			zap.Error(err))
		return DepositInfo{}, nil
	}
	return info, nil
}

const depositQuestion = "Is this message a bank deposit or money transfer receipt (card to card, transfer, satna, paya)?"

// IsDepositMessage only consults the AI when the keyword pre-filter passes.
func (s *Service) IsDepositMessage(ctx context.Context, text string) bool {
	if CountDepositKeywords(text) < s.cfg.DepositKeywordThreshold {
		return false
	}
	return s.classify(ctx, "deposit", depositQuestion, text)
}

const orderQuestion = "Is the customer asking to buy or order a product?"

func (s *Service) IsProductOrderRequest(ctx context.Context, text string) bool {
	return s.classify(ctx, "order_request", orderQuestion, text)
}

const positiveQuestion = "Does this message mean yes (agreement)?"

// IsPositiveResponse resolves curated phrasings locally and asks the AI only
// for the rest.
func (s *Service) IsPositiveResponse(ctx context.Context, text string) bool {
	switch keywordIntent(text) {
	case intentNegative:
		return false
	case intentPositive:
		return true
	}
	return s.classify(ctx, "positive", positiveQuestion, text)
}

func (s *Service) classify(ctx context.Context, op, question, text string) bool {
	if !s.IsActive() {
		return false
	}
	yes, err := withFailover(ctx, s, op, func(p Provider) (bool, error) {
		return p.Classify(ctx, question, text)
	})
	if err != nil {
		s.logger.Warn("Classification failed", zap.String("op", op), zap.Error(err))
		return false
	}
	return yes
}

func (s *Service) extract(ctx context.Context, op, instruction, text string) string {
	if !s.IsActive() {
		return ""
	}
	out, err := withFailover(ctx, s, op, func(p Provider) (string, error) {
		return p.Extract(ctx, instruction, text)
	})
	if err != nil {
		s.logger.Warn("Extraction failed", zap.String("op", op), zap.Error(err))
		return ""
	}
	return out
}

const productNameInstruction = "Extract the name of the product the customer wants to buy. Answer with the product name only."

// ExtractProductName returns "" when no product is named.
func (s *Service) ExtractProductName(ctx context.Context, text string) string {
	return s.extract(ctx, "product_name", productNameInstruction, text)
}

const quantityInstruction = "Extract the quantity the customer wants as a number. Answer with digits only."

// ExtractQuantity returns 0 when no positive quantity can be read.
func (s *Service) ExtractQuantity(ctx context.Context, text string) int {
	if n, ok := parseQuantity(text); ok {
		return n
	}
	if n, ok := LeadingInt(s.extract(ctx, "quantity", quantityInstruction, text)); ok && n > 0 {
		return n
	}
	return 0
}

const faqInstruction = `You match a customer message against a numbered list of frequently asked questions.
Answer with the number of the single best matching question, or 0 if none matches.

%s`

// FindMatchingFAQ returns the best matching entry or nil. Only the first
// MaxFAQs entries are considered.
func (s *Service) FindMatchingFAQ(ctx context.Context, text string, faqs []models.FAQ) *models.FAQ {
	if len(faqs) == 0 || !s.IsActive() {
		return nil
	}
	if len(faqs) > s.cfg.MaxFAQs {
		faqs = faqs[:s.cfg.MaxFAQs]
	}

	var list strings.Builder
	for i, f := range faqs {
		fmt.Fprintf(&list, "%d. Q: %s\n   A: %s\n", i+1, f.Question, f.Answer)
	}

	out := s.extract(ctx, "faq", fmt.Sprintf(faqInstruction, list.String()), text)
	n, ok := LeadingInt(out)
	if !ok || n < 1 || n > len(faqs) {
		return nil
	}
	match := faqs[n-1]
	return &match
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

// Describe reports the selection for operators.
func (s *Service) Describe() string {
	current := s.Current()
	name := "none"
	if current != nil {
		name = current.Name()
	}
	return "current=" + name + " registered=" + strconv.Itoa(len(s.Providers()))
}
