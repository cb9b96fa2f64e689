package models

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// InvalidDateMarker is rendered for dates that cannot be parsed as
// day-month-year. The view shows it verbatim instead of failing silently.
const InvalidDateMarker = "Invalid Date"

var currencyPrinter = message.NewPrinter(language.AmericanEnglish)

// ParseAmount parses a decimal amount string, tolerating thousands
// separators. Unparseable input yields zero rather than an error; amounts on
// bills are display data, not accounting data.
func ParseAmount(s string) float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	cleaned = strings.TrimPrefix(cleaned, "$")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// FormatCurrency renders an amount as localized US currency, e.g. "$1,234.56".
func FormatCurrency(amount float64) string {
	return currencyPrinter.Sprintf("$%.2f", amount)
}

// FormatDate reparses a day-month-year date string and renders it as
// "Jan 2, 2006". The backend transmits dates as DD-MM-YYYY; anything else,
// including ISO-ordered dates and the "N/A" placeholder, renders as the
// invalid-date marker.
func FormatDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == DefaultDate {
		return InvalidDateMarker
	}
	if strings.Count(s, "-") != 2 {
		return InvalidDateMarker
	}
	t, err := time.Parse("2-1-2006", s)
	if err != nil {
		return InvalidDateMarker
	}
	return t.Format("Jan 2, 2006")
}
