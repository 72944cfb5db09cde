package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatPrice renders a price with two decimals, or four below 10.
func FormatPrice(price float64) string {
	places := int32(2)
	if price < 10 && price > -10 {
		places = 4
	}
	return decimal.NewFromFloat(price).StringFixed(places)
}

// FormatRange renders a low-high price range.
func FormatRange(low, high float64) string {
	return FormatPrice(low) + " - " + FormatPrice(high)
}

// FormatTime renders a bar timestamp in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}

// FormatUnix renders a unix-second bar time in UTC.
func FormatUnix(sec int64) string {
	return FormatTime(time.Unix(sec, 0))
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// FormatSpan renders an inclusive index range.
func FormatSpan(start, end int) string {
	return fmt.Sprintf("%d→%d", start, end)
}

// ShortFingerprint keeps the first 12 hex digits of a fingerprint.
func ShortFingerprint(fp string) string {
	return TruncateString(fp, 12)
}

// TruncateString cuts s to maxLen runes.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}

// PadRight pads a string to the right.
func PadRight(s string, length int) string {
	n := len([]rune(s))
	if n >= length {
		return s
	}
	return s + strings.Repeat(" ", length-n)
}
