package application

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"pricecheck-service/internal/domain"
)

var (
	reISODate      = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	reNumericDate  = regexp.MustCompile(`(?:^|\D)(\d{1,2})[./-](\d{1,2})[./-](\d{4})(?:\D|$)`)
	reMonthDay     = regexp.MustCompile(`(\p{L}+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?(?:\D|$)`)
	reDayMonth     = regexp.MustCompile(`(?:^|\D)(\d{1,2})(?:st|nd|rd|th|\.)?\s+(\p{L}+)(?:,?\s+(\d{4}))?`)
	reYear         = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)
	reQuarterQ     = regexp.MustCompile(`(?:^|[^\p{L}])q([1-4])(?:\D|$)`)
	reQuarterYearQ = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})\s*[-/ ]?\s*q([1-4])(?:\D|$)`)
	reQuarterTR    = regexp.MustCompile(`([1-4])\s*(?:\.|'?inci|'?nci|'?üncü|'?ncı)?\s*(?:çeyrek|ceyrek)`)
	reQuarterEN    = regexp.MustCompile(`([1-4])(?:st|nd|rd|th)\s+quarter|quarter\s+([1-4])`)
	reRange        = regexp.MustCompile(`(?:^|[^\d.])(\d{1,3})\s*(?:-|–|to|ila)\s*(\d{1,3})(?:[^\d.]|$)`)
)

type monthName struct {
	month  time.Month
	prefix bool // inflected forms such as "hazirana" also match
}

var monthNames = map[string]monthName{
	"january": {time.January, false}, "jan": {time.January, false}, "ocak": {time.January, true},
	"february": {time.February, false}, "feb": {time.February, false}, "şubat": {time.February, true}, "subat": {time.February, true},
	"march": {time.March, false}, "mar": {time.March, false}, "mart": {time.March, true},
	"april": {time.April, false}, "apr": {time.April, false}, "nisan": {time.April, true},
	"may": {time.May, false}, "mayıs": {time.May, true}, "mayis": {time.May, true},
	"june": {time.June, false}, "jun": {time.June, false}, "haziran": {time.June, true},
	"july": {time.July, false}, "jul": {time.July, false}, "temmuz": {time.July, true},
	"august": {time.August, false}, "aug": {time.August, false}, "ağustos": {time.August, true}, "agustos": {time.August, true},
	"september": {time.September, false}, "sep": {time.September, false}, "sept": {time.September, false},
	"eylül": {time.September, true}, "eylul": {time.September, true},
	"october": {time.October, false}, "oct": {time.October, false}, "ekim": {time.October, true},
	"november": {time.November, false}, "nov": {time.November, false}, "kasım": {time.November, true}, "kasim": {time.November, true},
	"december": {time.December, false}, "dec": {time.December, false}, "aralık": {time.December, true}, "aralik": {time.December, true},
}

type horizonUnit int

const (
	unitNone horizonUnit = iota
	unitDay
	unitWeek
	unitMonth
	unitYear
)

var unitWords = map[string]horizonUnit{
	"day": unitDay, "days": unitDay, "gün": unitDay, "gun": unitDay, "günlük": unitDay, "gunluk": unitDay,
	"günde": unitDay, "güne": unitDay, "tomorrow": unitDay, "yarın": unitDay, "yarin": unitDay,
	"week": unitWeek, "weeks": unitWeek, "wk": unitWeek, "weekly": unitWeek, "hafta": unitWeek, "haftalık": unitWeek,
	"haftalik": unitWeek, "haftada": unitWeek, "haftaya": unitWeek, "haftası": unitWeek,
	"month": unitMonth, "months": unitMonth, "mo": unitMonth, "monthly": unitMonth, "ay": unitMonth, "aya": unitMonth,
	"ayda": unitMonth, "aylık": unitMonth, "aylik": unitMonth, "ayı": unitMonth, "ayin": unitMonth, "ayın": unitMonth,
	"year": unitYear, "years": unitYear, "yr": unitYear, "yrs": unitYear, "yearly": unitYear, "annual": unitYear,
	"yıl": unitYear, "yil": unitYear, "yıla": unitYear, "yılda": unitYear, "yıllık": unitYear, "yillik": unitYear,
	"yılı": unitYear, "sene": unitYear, "seneye": unitYear, "senede": unitYear, "senelik": unitYear,
}

var numberWords = map[string]float64{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7, "eight": 8,
	"nine": 9, "ten": 10, "eleven": 11, "twelve": 12, "eighteen": 18, "twenty": 20, "thirty": 30,
	"couple": 2, "half": 0.5,
	"bir": 1, "iki": 2, "üç": 3, "uc": 3, "dört": 4, "dort": 4, "beş": 5, "bes": 5, "altı": 6, "alti": 6,
	"yedi": 7, "sekiz": 8, "dokuz": 9, "on": 10, "yirmi": 20, "otuz": 30, "yarım": 0.5, "yarim": 0.5,
}

// "may" is also a verb. It names the month only when it is the whole value,
// sits next to a day or year, or follows a preposition ("by may").
var verbMonths = map[string]bool{"may": true}

var monthPrepositions = map[string]bool{
	"by": true, "in": true, "until": true, "till": true, "before": true, "of": true,
	"end": true, "early": true, "mid": true, "late": true,
}

var tensWords = map[string]bool{"twenty": true, "thirty": true, "on": true, "yirmi": true, "otuz": true}

var endOfYearMarkers = []string{"endofyear", "endoftheyear", "yearend", "yılsonu", "yilsonu", "senesonu", "yılbaşı", "yilbasi"}

// CalculateHorizonDateRange turns a horizon phrase into a calendar window
// anchored at postDate. horizonType selects the parser when it is one of the
// domain.Horizon* types; otherwise the text is scanned. Relative forms always
// start at postDate. Unparseable text falls back to one month.
func CalculateHorizonDateRange(postDate time.Time, horizonValue, horizonType string) (domain.HorizonWindow, error) {
	if postDate.IsZero() {
		return domain.HorizonWindow{}, fmt.Errorf("%w: post date is required", domain.ErrInvalidInput)
	}
	h := newHorizonText(domain.Day(postDate), horizonValue)

	var (
		w  domain.HorizonWindow
		ok bool
	)
	switch domain.HorizonType(strings.ToLower(strings.TrimSpace(horizonType))) {
	case domain.HorizonExactDate:
		w, ok = h.exactDate()
	case domain.HorizonEndOfYear:
		w, ok = h.endOfYear(), true
	case domain.HorizonQuarter:
		w, ok = h.quarter(true)
	case domain.HorizonMonth:
		w, ok = h.month(true)
	case domain.HorizonYear:
		w, ok = h.typedUnit(unitYear)
	case domain.HorizonWeek:
		w, ok = h.typedUnit(unitWeek)
	case domain.HorizonDay:
		w, ok = h.typedUnit(unitDay)
	}
	if !ok {
		w = h.scan()
	}
	return w, w.Validate()
}

type horizonText struct {
	post    time.Time
	text    string
	compact string
	tokens  []string
}

func newHorizonText(post time.Time, raw string) horizonText {
	text := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "\u0307", "")
	// Counts read "6-12 ay" as its upper bound. Dates are parsed from text,
	// which keeps the original separators.
	counts := reRange.ReplaceAllStringFunc(text, func(m string) string {
		sub := reRange.FindStringSubmatch(m)
		prefix := m[:strings.Index(m, sub[1])]
		suffix := m[strings.LastIndex(m, sub[2])+len(sub[2]):]
		return prefix + sub[2] + suffix
	})
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			return -1
		}
		return r
	}, text)
	return horizonText{post: post, text: text, compact: compact, tokens: tokenize(counts)}
}

// tokenize splits into letter runs and number runs. Decimal separators
// between digits stay inside the number.
func tokenize(s string) []string {
	var out []string
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsLetter(r):
			j := i
			for j < len(rs) && unicode.IsLetter(rs[j]) {
				j++
			}
			out = append(out, string(rs[i:j]))
			i = j
		case unicode.IsDigit(r):
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) ||
				((rs[j] == '.' || rs[j] == ',') && j+1 < len(rs) && unicode.IsDigit(rs[j+1]))) {
				j++
			}
			out = append(out, string(rs[i:j]))
			i = j
		default:
			i++
		}
	}
	return out
}

// scan tries every form in order of specificity.
func (h horizonText) scan() domain.HorizonWindow {
	if w, ok := h.exactDate(); ok {
		return w
	}
	if h.isEndOfYear() {
		return h.endOfYear()
	}
	if w, ok := h.quarter(false); ok {
		return w
	}
	if w, ok := h.month(false); ok {
		return w
	}
	if w, ok := h.unitSpan(); ok {
		return w
	}
	if y, ok := h.explicitYear(); ok && y >= h.post.Year() {
		return h.window(h.post, time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC))
	}
	return h.window(h.post, addMonths(h.post, 1))
}

// window keeps start <= end when an explicit bound precedes the post date.
func (h horizonText) window(start, end time.Time) domain.HorizonWindow {
	if end.Before(start) {
		start = end
	}
	return domain.NewHorizonWindow(start, end)
}

func (h horizonText) exactDate() (domain.HorizonWindow, bool) {
	d, ok := h.findDate()
	if !ok {
		return domain.HorizonWindow{}, false
	}
	return h.window(h.post, d), true
}

func (h horizonText) findDate() (time.Time, bool) {
	if m := reISODate.FindStringSubmatch(h.text); m != nil {
		if d, ok := makeDate(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3])); ok {
			return d, true
		}
	}
	if m := reNumericDate.FindStringSubmatch(h.text); m != nil {
		if d, ok := makeDate(atoi(m[3]), time.Month(atoi(m[2])), atoi(m[1])); ok {
			return d, true
		}
	}
	for _, m := range reMonthDay.FindAllStringSubmatch(h.text, -1) {
		if mon, ok := lookupMonth(m[1]); ok {
			if d, ok := h.datedDay(mon, atoi(m[2]), m[3]); ok {
				return d, true
			}
		}
	}
	for _, m := range reDayMonth.FindAllStringSubmatch(h.text, -1) {
		if mon, ok := lookupMonth(m[2]); ok {
			if d, ok := h.datedDay(mon, atoi(m[1]), m[3]); ok {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

// datedDay builds a date; without a year the next occurrence on or after
// the post date is used.
func (h horizonText) datedDay(mon time.Month, day int, year string) (time.Time, bool) {
	if year != "" {
		return makeDate(atoi(year), mon, day)
	}
	d, ok := makeDate(h.post.Year(), mon, day)
	if ok && d.Before(h.post) {
		d, ok = makeDate(h.post.Year()+1, mon, day)
	}
	return d, ok
}

func (h horizonText) isEndOfYear() bool {
	for _, m := range endOfYearMarkers {
		if strings.Contains(h.compact, m) {
			return true
		}
	}
	if h.hasToken("eoy") {
		return true
	}
	// "end of 2026", "2026 sonu"
	_, explicit := h.explicitYear()
	return explicit && !h.hasMonthName() &&
		(strings.Contains(h.compact, "endof") || strings.Contains(h.compact, "sonu"))
}

func (h horizonText) hasMonthName() bool {
	for i := range h.tokens {
		if _, ok := h.monthAt(i); ok {
			return true
		}
	}
	return false
}

// monthAt reports the month named by token i.
func (h horizonText) monthAt(i int) (time.Month, bool) {
	tok := h.tokens[i]
	mon, ok := lookupMonth(tok)
	if !ok || !verbMonths[tok] || len(h.tokens) == 1 {
		return mon, ok
	}
	if i > 0 && monthPrepositions[h.tokens[i-1]] {
		return mon, true
	}
	for _, j := range []int{i - 1, i + 1} {
		if j < 0 || j >= len(h.tokens) {
			continue
		}
		n := h.tokens[j]
		if _, err := strconv.Atoi(n); err == nil && (len(n) <= 2 || len(n) == 4) {
			return mon, true
		}
	}
	return 0, false
}

// endOfYear is December of the post year, or of an explicit year.
func (h horizonText) endOfYear() domain.HorizonWindow {
	y := h.post.Year()
	if ey, ok := h.explicitYear(); ok {
		y = ey
	}
	return domain.NewHorizonWindow(
		time.Date(y, time.December, 1, 0, 0, 0, 0, time.UTC),
		time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC),
	)
}

// quarter handles explicit quarters (Q2, 2025Q3, "2. çeyrek") as calendar
// quarters; a bare or counted quarter is relative to the post date. typed
// reports that the caller declared a quarter horizon.
func (h horizonText) quarter(typed bool) (domain.HorizonWindow, bool) {
	q, year := 0, 0
	if m := reQuarterYearQ.FindStringSubmatch(h.text); m != nil {
		year, q = atoi(m[1]), atoi(m[2])
	} else if m := reQuarterQ.FindStringSubmatch(h.text); m != nil {
		q = atoi(m[1])
	} else if m := reQuarterTR.FindStringSubmatch(h.text); m != nil && !h.countedQuarter(m[0]) {
		q = atoi(m[1])
	} else if m := reQuarterEN.FindStringSubmatch(h.text); m != nil {
		q = atoi(m[1] + m[2])
	}
	if q > 0 {
		if year == 0 {
			if y, ok := h.explicitYear(); ok {
				year = y
			}
		}
		start, end := quarterBounds(h.post.Year(), q)
		if year != 0 {
			start, end = quarterBounds(year, q)
		} else if end.Before(h.post) {
			start, end = quarterBounds(h.post.Year()+1, q)
		}
		return h.window(start, end), true
	}

	mentioned := h.hasTokenPrefix("quarter") || h.hasTokenPrefix("çeyrek") || h.hasTokenPrefix("ceyrek")
	if !typed && !mentioned {
		return domain.HorizonWindow{}, false
	}
	n := 1.0
	if idx := h.tokenIndexPrefix("quarter", "çeyrek", "ceyrek"); idx >= 0 {
		if v, ok := h.numberBefore(idx); ok {
			n = v
		}
	} else if v, ok := h.firstNumber(); ok {
		n = v
	}
	return h.window(h.post, addMonths(h.post, int(math.Round(n*3)))), true
}

// countedQuarter tells "2 çeyrek" (two quarters) from "2. çeyrek" (Q2).
func (h horizonText) countedQuarter(match string) bool {
	return !strings.ContainsAny(match, ".'") && !strings.Contains(match, "nci") &&
		!strings.Contains(match, "üncü") && !strings.Contains(match, "ncı") && !strings.Contains(match, "inci")
}

func quarterBounds(year, q int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(3*(q-1)+1), 1, 0, 0, 0, 0, time.UTC)
	return start, addMonths(start, 3).AddDate(0, 0, -1)
}

// month handles a named month (window ends on its last day) and relative
// month counts.
func (h horizonText) month(typed bool) (domain.HorizonWindow, bool) {
	for i := range h.tokens {
		mon, ok := h.monthAt(i)
		if !ok {
			continue
		}
		y := h.post.Year()
		ey, explicit := h.explicitYear()
		if explicit {
			y = ey
		}
		end := lastDayOfMonth(y, mon)
		if !explicit && end.Before(h.post) {
			end = lastDayOfMonth(y+1, mon)
		}
		return h.window(h.post, end), true
	}

	idx := h.unitIndex(unitMonth)
	if idx < 0 && !typed {
		return domain.HorizonWindow{}, false
	}
	n := 1.0
	if idx >= 0 {
		if v, ok := h.numberBefore(idx); ok {
			n = v
		}
	} else if v, ok := h.firstNumber(); ok {
		n = v
	}
	return h.window(h.post, addSpan(h.post, unitMonth, n)), true
}

// unitSpan scans for the first year, week or day keyword.
func (h horizonText) unitSpan() (domain.HorizonWindow, bool) {
	for i, tok := range h.tokens {
		u, ok := unitWords[tok]
		if !ok || u == unitMonth {
			continue
		}
		n := 1.0
		if v, ok := h.numberBefore(i); ok {
			n = v
		}
		return h.window(h.post, addSpan(h.post, u, n)), true
	}
	return domain.HorizonWindow{}, false
}

// typedUnit handles a declared year, week or day horizon whose value may be
// just a count ("2") or a calendar year ("2026").
func (h horizonText) typedUnit(u horizonUnit) (domain.HorizonWindow, bool) {
	if w, ok := h.exactDate(); ok {
		return w, true
	}
	if u == unitYear && h.isEndOfYear() {
		return h.endOfYear(), true
	}
	if idx := h.unitIndex(u); idx >= 0 {
		n := 1.0
		if v, ok := h.numberBefore(idx); ok {
			n = v
		}
		return h.window(h.post, addSpan(h.post, u, n)), true
	}
	if y, ok := h.explicitYear(); ok && u == unitYear {
		return h.window(h.post, time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC)), true
	}
	n := 1.0
	if v, ok := h.firstNumber(); ok {
		n = v
	}
	return h.window(h.post, addSpan(h.post, u, n)), true
}

func (h horizonText) explicitYear() (int, bool) {
	if m := reYear.FindStringSubmatch(h.text); m != nil {
		return atoi(m[1]), true
	}
	return 0, false
}

func (h horizonText) hasToken(t string) bool {
	for _, tok := range h.tokens {
		if tok == t {
			return true
		}
	}
	return false
}

func (h horizonText) hasTokenPrefix(p string) bool { return h.tokenIndexPrefix(p) >= 0 }

func (h horizonText) tokenIndexPrefix(prefixes ...string) int {
	for i, tok := range h.tokens {
		for _, p := range prefixes {
			if strings.HasPrefix(tok, p) {
				return i
			}
		}
	}
	return -1
}

func (h horizonText) unitIndex(u horizonUnit) int {
	for i, tok := range h.tokens {
		if unitWords[tok] == u {
			return i
		}
	}
	return -1
}

// numberBefore reads the count written just before token i: digits, a
// number word, or a tens word plus a unit word ("twenty four", "on iki").
func (h horizonText) numberBefore(i int) (float64, bool) {
	if i == 0 {
		return 0, false
	}
	prev := h.tokens[i-1]
	if v, ok := parseCount(prev); ok {
		return v, true
	}
	v, ok := numberWords[prev]
	if !ok {
		return 0, false
	}
	if i >= 2 && tensWords[h.tokens[i-2]] && !tensWords[prev] && v < 10 && v >= 1 {
		v += numberWords[h.tokens[i-2]]
	}
	return v, true
}

func (h horizonText) firstNumber() (float64, bool) {
	for _, tok := range h.tokens {
		if v, ok := parseCount(tok); ok {
			return v, true
		}
	}
	return 0, false
}

// parseCount accepts small positive counts; four-digit years are not counts.
func parseCount(tok string) (float64, bool) {
	if tok == "" || !unicode.IsDigit([]rune(tok)[0]) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", "."), 64)
	if err != nil || v <= 0 || v >= 1000 {
		return 0, false
	}
	return v, true
}

func lookupMonth(tok string) (time.Month, bool) {
	if m, ok := monthNames[tok]; ok {
		return m.month, true
	}
	for name, m := range monthNames {
		if m.prefix && strings.HasPrefix(tok, name) {
			return m.month, true
		}
	}
	return 0, false
}

// addSpan adds n units to t. Fractional months and years are rounded to
// whole months; fractional weeks and days to whole days.
func addSpan(t time.Time, u horizonUnit, n float64) time.Time {
	switch u {
	case unitYear:
		return addMonths(t, int(math.Round(n*12)))
	case unitMonth:
		if n == math.Trunc(n) {
			return addMonths(t, int(n))
		}
		return t.AddDate(0, 0, int(math.Round(n*30)))
	case unitWeek:
		return t.AddDate(0, 0, int(math.Round(n*7)))
	default:
		return t.AddDate(0, 0, int(math.Round(n)))
	}
}

// addMonths adds n calendar months, clamping to the last day of the target
// month instead of overflowing into the next one.
func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := lastDayOfMonth(first.Year(), first.Month())
	if t.Day() > last.Day() {
		return last
	}
	return time.Date(first.Year(), first.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(year int, m time.Month) time.Time {
	return time.Date(year, m+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

func makeDate(year int, m time.Month, day int) (time.Time, bool) {
	if m < time.January || m > time.December || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, m, day, 0, 0, 0, 0, time.UTC)
	return d, d.Month() == m && d.Day() == day
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
