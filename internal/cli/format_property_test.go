package cli

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"chanlun/internal/models"
)

// FormatPrice keeps two decimals (four below 10) and stays within half a
// unit of the last place.
func TestProperty_FormatPriceRounding(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("fixed places and bounded rounding", prop.ForAll(
		func(price float64) bool {
			s := FormatPrice(price)
			places := 2
			if math.Abs(price) < 10 {
				places = 4
			}
			dot := strings.IndexByte(s, '.')
			if dot < 0 || len(s)-dot-1 != places {
				t.Logf("%f formatted as %s", price, s)
				return false
			}
			back, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return false
			}
			return math.Abs(back-price) <= 0.5*math.Pow10(-places)+1e-9
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}

func TestProperty_TruncateAndPad(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("truncate is a rune prefix no longer than max", prop.ForAll(
		func(s string, n int) bool {
			return len([]rune(TruncateString(s, n))) <= n
		},
		gen.UnicodeString(unicode.Greek),
		gen.IntRange(0, 40),
	))

	properties.Property("truncate keeps a prefix", prop.ForAll(
		func(s string, n int) bool {
			return strings.HasPrefix(s, TruncateString(s, n))
		},
		gen.UnicodeString(unicode.Greek),
		gen.IntRange(0, 40),
	))

	properties.Property("pad reaches the width without changing the text", prop.ForAll(
		func(s string, n int) bool {
			out := PadRight(s, n)
			if !strings.HasPrefix(out, s) || strings.TrimRight(out[len(s):], " ") != "" {
				return false
			}
			return len([]rune(out)) == max(n, len([]rune(s)))
		},
		gen.AlphaString(),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

// Colored cells measure the same as plain ones, so tables stay aligned.
func TestProperty_VisibleLenIgnoresColor(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	colored := newOutput(&bytes.Buffer{}, false, true)
	properties.Property("stripANSI undoes coloring", prop.ForAll(
		func(s string) bool {
			for _, c := range []string{colored.Green(s), colored.Red(s), colored.BoldText(s), colored.DimText(s)} {
				if stripANSI(c) != s || visibleLen(c) != len([]rune(s)) {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestFormatExamples(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{FormatPrice(22150.456), "22150.46"},
		{FormatPrice(1.23456), "1.2346"},
		{FormatRange(99, 101.5), "99.00 - 101.50"},
		{FormatTime(time.Date(2024, 1, 2, 9, 15, 30, 0, time.UTC)), "2024-01-02 09:15"},
		{FormatUnix(0), "1970-01-01 00:00"},
		{FormatDuration(1500 * time.Microsecond), "1ms"},
		{FormatDuration(2500 * time.Millisecond), "2.5s"},
		{FormatDuration(125 * time.Second), "2m 5s"},
		{FormatSpan(3, 9), "3→9"},
		{ShortFingerprint("0123456789abcdef"), "0123456789ab"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTableAlignsColoredCells(t *testing.T) {
	var buf bytes.Buffer
	out := newOutput(&buf, false, true)
	tbl := NewTable(out, "Dir", "Price")
	tbl.AddRow(out.Direction(models.DirectionUp), FormatPrice(100))
	tbl.AddRow(out.Direction(models.DirectionDown), FormatPrice(95.5))
	tbl.Render()

	lines := strings.Split(strings.TrimRight(stripANSI(buf.String()), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("table lines %q", lines)
	}
	column := func(line, chars string) int {
		idx := strings.IndexAny(line, chars)
		if idx < 0 {
			return -1
		}
		return len([]rune(line[:idx]))
	}
	want := column(lines[0], "P")
	for _, l := range lines[2:] {
		if got := column(l, "0123456789"); got != want {
			t.Errorf("price column at %d, header at %d: %q", got, want, l)
		}
	}
}
