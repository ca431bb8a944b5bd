package whatsapp

import (
	"strings"
	"unicode"
)

var digitReplacer = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// NormalizeDigits converts Persian and Arabic-Indic digits to ASCII.
func NormalizeDigits(s string) string {
	return digitReplacer.Replace(s)
}

// NormalizePhone turns a WhatsApp address (98912..., +98912..., 0098912...)
// into the local form stored on accounts (0912...).
func NormalizePhone(raw string) string {
	raw = NormalizeDigits(strings.TrimSpace(raw))
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		raw = raw[:i]
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	phone := b.String()

	switch {
	case strings.HasPrefix(phone, "0098"):
		phone = "0" + phone[4:]
	case strings.HasPrefix(phone, "98") && len(phone) == 12:
		phone = "0" + phone[2:]
	case strings.HasPrefix(phone, "9") && len(phone) == 10:
		phone = "0" + phone
	}
	return phone
}
