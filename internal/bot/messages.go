package bot

import (
	"strconv"
	"strings"
)

// Customer-facing texts. Everything the bot says goes through these.
const (
	msgAskFullName         = "سلام! برای شروع لطفاً نام و نام خانوادگی خود را بفرستید (مثال: علی رضایی)."
	defaultWelcomeTemplate = "{name} عزیز، خوش آمدید! ثبت‌نام شما انجام شد و اشتراک آزمایشی برایتان فعال شد. هر سوالی دارید بپرسید."

	msgDepositReceived  = "رسید واریز به مبلغ %s تومان با شماره پیگیری %s دریافت شد و پس از بررسی تأیید می‌شود.\nموجودی تأییدشده فعلی: %s تومان"
	msgDepositDuplicate = "این رسید با شماره پیگیری %s قبلاً ثبت شده است و نیازی به ارسال دوباره نیست."

	msgAskProductName          = "لطفاً نام محصولی که می‌خواهید را دقیق‌تر بنویسید."
	msgProductNotFound         = "متأسفانه محصولی با نام «%s» پیدا نکردیم."
	msgProductAmbiguous        = "چند محصول پیدا شد:\n%s\nلطفاً نام دقیق محصول را بفرستید."
	msgProductFound            = "%s\nقیمت: %s تومان\nچند عدد می‌خواهید؟"
	msgAskQuantityAgain        = "لطفاً تعداد را به عدد بفرستید (مثلاً ۲)."
	msgInsufficientStock       = "متأسفانه فقط %s عدد از این محصول موجود است. لطفاً تعداد کمتری وارد کنید."
	msgInsufficientStockInCart = "%s عدد از این محصول در سبد خرید شماست و فقط %s عدد دیگر موجود است. لطفاً تعداد کمتری وارد کنید."
	msgStockAllInCart          = "همه موجودی (%s عدد) %s در سبد خرید شماست.\nمحصول دیگری هم می‌خواهید؟"
	msgAddedToCart             = "%s عدد %s به سبد خرید اضافه شد (جمع: %s تومان).\nمحصول دیگری هم می‌خواهید؟"
	msgAskNextProduct          = "چه محصول دیگری می‌خواهید؟"

	msgAskAddressTitle = "برای ارسال سفارش یک عنوان برای آدرس بفرستید (مثلاً خانه یا محل کار)."
	msgAskAddressFull  = "آدرس کامل را بفرستید."
	msgAskPostalCode   = "کد پستی را بفرستید."
	msgAddressSaved    = "آدرس ذخیره شد."

	msgShippingMenu    = "روش ارسال را انتخاب کنید و شماره آن را بفرستید:\n%s"
	msgInvalidShipping = "گزینه نامعتبر است."
	msgNoShipping      = "در حال حاضر هیچ روش ارسالی فعال نیست. لطفاً بعداً دوباره تلاش کنید."
	msgCartEmpty       = "سبد خرید شما خالی است."

	msgOrderConfirmed = "سفارش شما ثبت شد.\nتعداد سفارش: %s\nمبلغ کل: %s تومان\nروش ارسال: %s\nآدرس: %s"
	msgInvoiceCaption = "فاکتور سفارش شماره %d"
	msgStockChanged   = "موجودی %s به %s عدد رسیده و سفارش ثبت نشد. سبد خرید شما خالی شد، لطفاً دوباره سفارش دهید."

	msgCannotAnswer = "در حال حاضر امکان پاسخ‌گویی خودکار نیست. به‌زودی با شما تماس می‌گیریم."
	msgGenericError = "متأسفانه خطایی رخ داد. لطفاً دوباره پیام دهید."
)

var shippingNames = map[string]string{
	"pishtaz": "پست پیشتاز",
	"post":    "پست معمولی",
	"courier": "پیک",
	"free":    "ارسال رایگان",
}

var persianDigits = strings.NewReplacer(
	"0", "۰", "1", "۱", "2", "۲", "3", "۳", "4", "۴",
	"5", "۵", "6", "۶", "7", "۷", "8", "۸", "9", "۹",
)

// formatAmount renders n with thousands separators in Persian digits.
func formatAmount(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := persianDigits.Replace(b.String())
	if neg {
		return "-" + out
	}
	return out
}

func formatCount(n int) string {
	return persianDigits.Replace(strconv.Itoa(n))
}

func welcomeText(template, name string) string {
	if strings.TrimSpace(template) == "" {
		template = defaultWelcomeTemplate
	}
	return strings.ReplaceAll(template, "{name}", name)
}
