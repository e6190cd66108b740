// Package dateparse resolves free-form English text such as
// "next Tuesday at 3pm" into an instant relative to a reference time.
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Extractor finds the first date/time expression in text. The reference
// time carries the location results are expressed in.
type Extractor interface {
	ExtractDateTime(text string, ref time.Time) (time.Time, bool, error)
}

var (
	// ISO year-month-day, "Dec 20[,] 2027" and "20th [of] December[,] 2027".
	yearDate = regexp.MustCompile(`(?i)\b(?:` +
		`(\d{4})-(\d{1,2})-(\d{1,2})` +
		`|` + en.MONTH_OFFSET_PATTERN + `\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})` +
		`|(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?` + en.MONTH_OFFSET_PATTERN + `,?\s+(\d{4})` +
		`)\b`)

	monthName = regexp.MustCompile(`(?i)\b` + en.MONTH_OFFSET_PATTERN)

	// A year directly after a match means the parser stopped short of it.
	trailingYear = regexp.MustCompile(`^\W{0,3}(?:19|20)\d{2}\b`)
)

type civilDate struct {
	year  int
	month time.Month
	day   int
}

type WhenExtractor struct {
	parser *when.Parser
}

func NewWhenExtractor() *WhenExtractor {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &WhenExtractor{parser: w}
}

// ExtractDateTime returns the first date/time expression found in text,
// truncated to the minute and expressed in ref's location. Dates that state
// a year ("2027-12-20", "Dec 20 2027", "20th of December, 2027") are
// rewritten to day/month/year before parsing so the year is kept. A weekday
// qualified with "next" means the nearest following occurrence, so from a
// Monday "next Tuesday" is the following day.
func (e *WhenExtractor) ExtractDateTime(text string, ref time.Time) (time.Time, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false, nil
	}

	normalized, explicit := normalizeDates(text)

	ref = ref.Truncate(time.Minute)
	r, err := e.parser.Parse(normalized, ref)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse date expression: %w", err)
	}
	if r == nil {
		return time.Time{}, false, nil
	}
	if explicit == nil && trailingYear.MatchString(normalized[r.Index+len(r.Text):]) {
		return time.Time{}, false, nil
	}

	t := r.Time.In(ref.Location())
	year, month, day := t.Date()
	if explicit != nil {
		year, month, day = explicit.year, explicit.month, explicit.day
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), 0, 0, ref.Location()), true, nil
}

// normalizeDates rewrites every valid year-qualified date to D/M/YYYY and
// returns the earliest one.
func normalizeDates(text string) (string, *civilDate) {
	var (
		b     strings.Builder
		first *civilDate
		last  int
	)
	for _, loc := range yearDate.FindAllStringSubmatchIndex(text, -1) {
		g := func(i int) string {
			if loc[2*i] < 0 {
				return ""
			}
			return text[loc[2*i]:loc[2*i+1]]
		}

		var (
			d  civilDate
			ok bool
		)
		switch {
		case g(1) != "":
			d, ok = civil(g(1), monthNumber(g(2)), g(3))
		case g(4) != "":
			d, ok = civil(g(5), monthOf(g(0)), g(4))
		default:
			d, ok = civil(g(7), monthOf(g(0)), g(6))
		}
		if !ok {
			continue
		}
		if first == nil {
			first = &d
		}
		b.WriteString(text[last:loc[0]])
		fmt.Fprintf(&b, "%d/%d/%d", d.day, int(d.month), d.year)
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String(), first
}

func monthNumber(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func monthOf(s string) int {
	name := strings.ToLower(monthName.FindString(s))
	if n, ok := en.MONTH_OFFSET[name]; ok {
		return n
	}
	return en.MONTH_OFFSET[strings.TrimSuffix(name, ".")]
}

func civil(yearStr string, month int, dayStr string) (civilDate, bool) {
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return civilDate{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || month < 1 || month > 12 || day < 1 {
		return civilDate{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return civilDate{}, false
	}
	return civilDate{year: year, month: time.Month(month), day: day}, true
}
