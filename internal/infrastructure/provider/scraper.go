package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"pricecheck-service/internal/application"
	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/httpx"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// ScrapeTarget is one instrument on a scraped page.
type ScrapeTarget struct {
	Code   string
	Labels []string
}

// Scraper reads live prices out of an HTML page. Pages change without
// notice, so extraction tries several strategies in order: data attributes,
// element ids or classes naming the code, labelled table rows, and finally
// a label-then-number match on the page text. It only prices today.
type Scraper struct {
	SourceName string
	PageURL    string
	HTTP       *httpx.Client
	Targets    []ScrapeTarget
	Now        func() time.Time
}

var _ application.PriceProvider = (*Scraper)(nil)

// NewMetalsScraper tracks spot gold, silver, platinum and palladium.
func NewMetalsScraper(pageURL string, client *httpx.Client) *Scraper {
	return &Scraper{
		SourceName: application.RouteMetals,
		PageURL:    pageURL,
		HTTP:       client,
		Targets: []ScrapeTarget{
			{Code: "XAU", Labels: []string{"Gold", "Ons Altın", "Altın (Ons)"}},
			{Code: "XAG", Labels: []string{"Silver", "Gümüş"}},
			{Code: "XPT", Labels: []string{"Platinum", "Platin"}},
			{Code: "XPD", Labels: []string{"Palladium", "Paladyum"}},
		},
	}
}

// NewGramGoldScraper tracks the per-gram gold price.
func NewGramGoldScraper(pageURL string, client *httpx.Client) *Scraper {
	return &Scraper{
		SourceName: application.RouteGramGold,
		PageURL:    pageURL,
		HTTP:       client,
		Targets:    []ScrapeTarget{{Code: "GRAM_ALTIN", Labels: []string{"Gram Altın", "Gram Gold", "Gram"}}},
	}
}

func (s *Scraper) Name() string { return s.SourceName }

func (s *Scraper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Scraper) target(code string) (ScrapeTarget, bool) {
	for _, t := range s.Targets {
		if strings.EqualFold(t.Code, code) {
			return t, true
		}
	}
	return ScrapeTarget{}, false
}

func (s *Scraper) PriceAt(ctx context.Context, code string, date time.Time) (float64, error) {
	t, ok := s.target(code)
	if !ok {
		return 0, fmt.Errorf("%s %s: %w", s.SourceName, code, domain.ErrUnsupportedAsset)
	}
	if !domain.Day(date).Equal(domain.Day(s.now())) {
		return 0, fmt.Errorf("%s %s: live only: %w", s.SourceName, code, domain.ErrPriceNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.PageURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: create request: %w", s.SourceName, err)
	}
	req.Header.Set("Accept", "text/html")
	body, err := s.HTTP.Do(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s.SourceName, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%s: parse html: %w", s.SourceName, err)
	}
	if p, ok := extractPrice(doc, t); ok {
		return p, nil
	}
	return 0, fmt.Errorf("%s %s: no price on page: %w", s.SourceName, code, domain.ErrPriceNotFound)
}

var extractors = []func(*goquery.Document, ScrapeTarget) (float64, bool){
	byDataAttribute,
	byIDOrClass,
	byTableRow,
	byText,
}

func extractPrice(doc *goquery.Document, t ScrapeTarget) (float64, bool) {
	for _, ex := range extractors {
		if p, ok := ex(doc, t); ok && p > 0 {
			return p, true
		}
	}
	return 0, false
}

func (t ScrapeTarget) matches(s string) bool {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, t.Code) {
		return true
	}
	for _, l := range t.Labels {
		if strings.EqualFold(s, l) {
			return true
		}
	}
	return false
}

// byDataAttribute: <span data-symbol="XAU" data-price="2,345.10">.
func byDataAttribute(doc *goquery.Document, t ScrapeTarget) (float64, bool) {
	var (
		price float64
		found bool
	)
	doc.Find("[data-symbol]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !t.matches(sel.AttrOr("data-symbol", "")) {
			return true
		}
		for _, attr := range []string{"data-price", "data-value", "data-last"} {
			if v, ok := sel.Attr(attr); ok {
				price, found = ParseLocalizedNumber(v)
				if found {
					return false
				}
			}
		}
		price, found = ParseLocalizedNumber(sel.Text())
		return !found
	})
	return price, found
}

// byIDOrClass: <td id="xau-price">, <div class="gold-price">.
func byIDOrClass(doc *goquery.Document, t ScrapeTarget) (float64, bool) {
	keys := []string{strings.ToLower(t.Code)}
	for _, l := range t.Labels {
		keys = append(keys, strings.ToLower(strings.ReplaceAll(l, " ", "-")))
	}
	var (
		price float64
		found bool
	)
	doc.Find("[id],[class]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		id := strings.ToLower(sel.AttrOr("id", ""))
		class := strings.ToLower(sel.AttrOr("class", ""))
		for _, k := range keys {
			if (strings.Contains(id, k) || strings.Contains(class, k)) && sel.Children().Length() == 0 {
				price, found = ParseLocalizedNumber(sel.Text())
				if found {
					return false
				}
			}
		}
		return true
	})
	return price, found
}

// byTableRow: a row whose first cell is the label; the first numeric cell
// after it is the price.
func byTableRow(doc *goquery.Document, t ScrapeTarget) (float64, bool) {
	var (
		price float64
		found bool
	)
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("th,td")
		if cells.Length() < 2 || !t.matches(cells.First().Text()) {
			return true
		}
		cells.Slice(1, cells.Length()).EachWithBreak(func(_ int, c *goquery.Selection) bool {
			price, found = ParseLocalizedNumber(c.Text())
			return !found
		})
		return !found
	})
	return price, found
}

// byText: "Gold 2,345.10" anywhere in the page text.
func byText(doc *goquery.Document, t ScrapeTarget) (float64, bool) {
	text := strings.Join(strings.Fields(doc.Text()), " ")
	for _, l := range append([]string{t.Code}, t.Labels...) {
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(l) + `[^0-9\p{L}]{0,20}([0-9][0-9.,]*)`)
		if err != nil {
			continue
		}
		if m := re.FindStringSubmatch(text); m != nil {
			if p, ok := ParseLocalizedNumber(m[1]); ok {
				return p, true
			}
		}
	}
	return 0, false
}

var reNumber = regexp.MustCompile(`[0-9][0-9.,]*`)

// ParseLocalizedNumber reads prices written either as 2,345.10 or 2.345,10.
// With a single separator, three trailing digits mean a thousands group.
func ParseLocalizedNumber(s string) (float64, bool) {
	if strings.Contains(s, "%") {
		return 0, false
	}
	m := strings.TrimRight(reNumber.FindString(s), ".,")
	if m == "" {
		return 0, false
	}
	lastDot := strings.LastIndex(m, ".")
	lastComma := strings.LastIndex(m, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			m = strings.ReplaceAll(m, ".", "")
			m = strings.Replace(m, ",", ".", 1)
		} else {
			m = strings.ReplaceAll(m, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(m, ",") > 1 || len(m)-lastComma-1 == 3 {
			m = strings.ReplaceAll(m, ",", "")
		} else {
			m = strings.Replace(m, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(m, ".") > 1 {
			m = strings.ReplaceAll(m, ".", "")
		}
	}
	d, err := decimal.NewFromString(m)
	if err != nil || !d.IsPositive() {
		return 0, false
	}
	return d.InexactFloat64(), true
}
