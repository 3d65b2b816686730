package reporting

import "strings"

// Short weekday labels, Monday first.
var shortWeekdays = map[string][7]string{
	"es": {"lun", "mar", "mié", "jue", "vie", "sáb", "dom"},
	"en": {"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
	"pt": {"seg", "ter", "qua", "qui", "sex", "sáb", "dom"},
}

const DefaultLocale = "es"

// ShortWeekdays resolves a locale such as "es-AR" or "en_US" by its language
// part and falls back to Spanish.
func ShortWeekdays(locale string) [7]string {
	lang := strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	if labels, ok := shortWeekdays[lang]; ok {
		return labels
	}
	return shortWeekdays[DefaultLocale]
}

func SupportedLocale(locale string) bool {
	lang := strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	_, ok := shortWeekdays[lang]
	return ok
}
