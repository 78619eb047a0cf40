package crawler

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/weatherhub/weatherhub/internal/model"
)

// ParseMonthPage extracts day rows from the first table of a monthly history
// page. r must already be UTF-8. The header row is skipped, as are rows with
// fewer than four cells or an empty date.
func ParseMonthPage(r io.Reader, cityName string) ([]model.WeatherRecord, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	table := findFirst(doc, atom.Table)
	if table == nil {
		return nil, nil
	}

	var rows []*html.Node
	collect(table, atom.Tr, &rows)
	if len(rows) <= 1 {
		return nil, nil
	}

	var out []model.WeatherRecord
	for _, row := range rows[1:] {
		var cells []*html.Node
		collect(row, atom.Td, &cells)
		if len(cells) < 4 {
			continue
		}
		dateText := cellText(cells[0])
		if dateText == "" {
			continue
		}
		date, ok := NormalizeDate(dateText)
		if !ok {
			continue
		}

		rawTemp := cellText(cells[2])
		lo, hi := ParseTemperature(rawTemp)
		out = append(out, model.WeatherRecord{
			City:             cityName,
			Date:             date,
			WeatherCondition: collapseSpace(cellText(cells[1])),
			TempMin:          lo,
			TempMax:          hi,
			TempRaw:          FormatTemperature(rawTemp),
			WindInfo:         collapseSpace(cellText(cells[3])),
		})
	}
	return out, nil
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

// collect appends descendants of n with atom a, not descending into matches.
func collect(n *html.Node, a atom.Atom, out *[]*html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			*out = append(*out, c)
			continue
		}
		collect(c, a, out)
	}
}

func cellText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var dateLayouts = []string{
	model.DateLayout,
	"2006年01月02日",
	"2006年1月2日",
	"2006/01/02",
	"2006/1/2",
}

// NormalizeDate converts the date formats seen on history pages to
// YYYY-MM-DD.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(model.DateLayout), true
		}
	}
	return "", false
}

var tempPairRe = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)[-/~](-?\d+(?:\.\d+)?)$`)

// ParseTemperature reads "16℃ / 7℃", "7-16", "-3~5" and similar into an
// ordered (min, max) pair. A single value yields (v, v). Unparseable input
// yields (nil, nil).
func ParseTemperature(raw string) (lo, hi *float64) {
	s := strings.NewReplacer(" ", "", "℃", "", "°C", "", "°", "").Replace(strings.TrimSpace(raw))
	if s == "" {
		return nil, nil
	}
	if m := tempPairRe.FindStringSubmatch(s); m != nil {
		a, errA := strconv.ParseFloat(m[1], 64)
		b, errB := strconv.ParseFloat(m[2], 64)
		if errA != nil || errB != nil {
			return nil, nil
		}
		if a > b {
			a, b = b, a
		}
		return &a, &b
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, nil
	}
	w := v
	return &v, &w
}

// FormatTemperature rewrites the page's "high / low" display as "low-high",
// e.g. "16℃ / 7℃" becomes "7℃-16℃". Anything else is returned trimmed.
func FormatTemperature(raw string) string {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	parts := strings.Split(s, "/")
	if len(parts) == 2 {
		return parts[1] + "-" + parts[0]
	}
	return s
}
