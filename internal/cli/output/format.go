package output

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatHeader returns a markdown heading.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue returns a markdown bullet with a bold key.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("- **%s:** %s", key, value)
}

// FormatCount groups digits: 12,345.
func FormatCount(n int) string {
	return printer.Sprintf("%d", n)
}

// FormatNumber renders v with the given decimals and grouped digits.
func FormatNumber(v float64, decimals int) string {
	return printer.Sprintf("%.*f", decimals, v)
}

// FormatPercent renders v as a percentage with one decimal.
func FormatPercent(v float64) string {
	return printer.Sprintf("%.1f%%", v)
}
