package ai

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/xaenox/shop-bot/internal/whatsapp"
)

var depositKeywords = []string{
	"واریز", "واریزی", "مبلغ", "کارت به کارت", "انتقال", "رسید", "پیگیری",
	"شماره پیگیری", "مرجع", "تراکنش", "ریال", "تومان", "شبا", "ساتنا",
	"پایا", "حساب", "بانک", "پرداخت", "فیش",
}

// Negative phrases are checked first: several of them contain a positive
// word (نمیخوام contains میخوام).
var negativeKeywords = []string{
	"نه", "نخیر", "خیر", "نمیخوام", "نمیخواهم", "نیازی نیست", "کافیه",
	"بسه", "همین کافیه", "تموم", "تمام", "دیگه نه", "نه ممنون", "no", "nope",
}

var positiveKeywords = []string{
	"بله", "آره", "اره", "آری", "بلی", "باشه", "حتما", "حتماً", "اوکی",
	"میخوام", "میخواهم", "بیشتر", "یکی دیگه", "ok", "okay", "yes", "yeah",
}

// "نه" (nine) is left out: as a reply it almost always means no.
var quantityWords = map[string]int{
	"یک": 1, "یه": 1, "یکی": 1, "دو": 2, "دوتا": 2, "سه": 3, "سهتا": 3,
	"چهار": 4, "چهارتا": 4, "پنج": 5, "پنجتا": 5, "شش": 6, "شیش": 6, "هفت": 7,
	"هشت": 8, "ده": 10,
}

// normalizeText lower-cases, unifies digits and Arabic letter variants and
// drops zero-width non-joiners so keyword matching is spelling tolerant.
func normalizeText(s string) string {
	s = whatsapp.NormalizeDigits(strings.ToLower(strings.TrimSpace(s)))
	return strings.NewReplacer("\u200c", "", "ي", "ی", "ك", "ک").Replace(s)
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || r == '؟' || r == '،'
	})
}

// containsKeyword matches single words exactly and phrases as substrings.
func containsKeyword(text string, tokens []string, keyword string) bool {
	keyword = normalizeText(keyword)
	if strings.Contains(keyword, " ") {
		return strings.Contains(text, keyword)
	}
	for _, t := range tokens {
		if t == keyword {
			return true
		}
	}
	return false
}

// CountDepositKeywords returns how many distinct deposit keywords occur in text.
func CountDepositKeywords(text string) int {
	text = normalizeText(text)
	hits := 0
	for _, kw := range depositKeywords {
		if strings.Contains(text, normalizeText(kw)) {
			hits++
		}
	}
	return hits
}

type intent int

const (
	intentUnknown intent = iota
	intentPositive
	intentNegative
)

func keywordIntent(text string) intent {
	text = normalizeText(text)
	tokens := words(text)
	for _, kw := range negativeKeywords {
		if containsKeyword(text, tokens, kw) {
			return intentNegative
		}
	}
	for _, kw := range positiveKeywords {
		if containsKeyword(text, tokens, kw) {
			return intentPositive
		}
	}
	return intentUnknown
}

// parseQuantity finds the first positive integer or number word in text.
func parseQuantity(text string) (int, bool) {
	for _, w := range words(normalizeText(text)) {
		if n, err := strconv.Atoi(w); err == nil && n > 0 {
			return n, true
		}
		if n, ok := quantityWords[w]; ok {
			return n, true
		}
		// "3تا", "5عدد"
		digits := strings.TrimRightFunc(w, func(r rune) bool { return !unicode.IsDigit(r) })
		if digits != "" && digits != w {
			if n, err := strconv.Atoi(digits); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

// LeadingInt parses the integer that starts s, if any. Numbered menu replies
// look like "2", "۲" or "2 پست".
func LeadingInt(s string) (int, bool) {
	s = normalizeText(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	return n, err == nil
}
