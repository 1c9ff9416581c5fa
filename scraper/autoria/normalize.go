package autoria

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// phoneCountryCode is prepended to the national number returned by the
// phone endpoint ("(067) 123-45-67" → 380671234567).
const phoneCountryCode = "38"

var (
	leadingNumber = regexp.MustCompile(`^\d+`)
	anyNumber     = regexp.MustCompile(`\d+`)
)

// stripSpace drops every Unicode space, including the NBSP and narrow NBSP the
// site uses as thousands separators.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// parsePriceUSD turns "$12 345" or "12 345 $" into 12345.
func parsePriceUSD(raw string) (int, error) {
	cleaned := strings.ReplaceAll(stripSpace(raw), "$", "")
	v, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", raw, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("price %q is negative", raw)
	}
	return v, nil
}

// parseOdometer reads the leading number of a mileage badge, which the site
// shows in thousands of kilometres.
func parseOdometer(raw string) (int, error) {
	m := leadingNumber.FindString(strings.TrimSpace(raw))
	if m == "" {
		return 0, fmt.Errorf("odometer %q has no leading number", raw)
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("odometer %q: %w", raw, err)
	}
	return v * 1000, nil
}

// parseImagesCount reads the number that follows the label in badges such as
// "з 25".
func parseImagesCount(raw string) (int, error) {
	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return 0, fmt.Errorf("images count %q has no value after label", raw)
	}
	m := anyNumber.FindString(fields[1])
	if m == "" {
		return 0, fmt.Errorf("images count %q is not numeric", raw)
	}
	return strconv.Atoi(m)
}

// parseResultsCount reads "1 234" style totals.
func parseResultsCount(raw string) (int, error) {
	v, err := strconv.Atoi(stripSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("results count %q: %w", raw, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("results count %q is negative", raw)
	}
	return v, nil
}

// pageCount is ceil(results / perPage).
func pageCount(results, perPage int) int {
	if results <= 0 || perPage <= 0 {
		return 0
	}
	return (results + perPage - 1) / perPage
}

// usernameFromProfile returns the profile slug: last path segment with the
// ".html" suffix removed.
func usernameFromProfile(href string) string {
	p := href
	if u, err := url.Parse(href); err == nil {
		p = u.Path
	}
	slug := path.Base(strings.TrimRight(p, "/"))
	if slug == "." || slug == "/" {
		return ""
	}
	return strings.TrimSuffix(slug, ".html")
}

// normalizePhone keeps the digits of a formatted number and prefixes the
// country code.
func normalizePhone(formatted string) (int64, error) {
	var digits strings.Builder
	for _, r := range formatted {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, fmt.Errorf("phone %q has no digits", formatted)
	}
	return strconv.ParseInt(phoneCountryCode+digits.String(), 10, 64)
}

// listingID extracts 38291054 from
// https://auto.ria.com/uk/auto_bmw_x5_38291054.html.
func listingID(listingURL string) (string, error) {
	p := listingURL
	if u, err := url.Parse(listingURL); err == nil {
		p = u.Path
	}
	idx := strings.LastIndex(p, "_")
	if idx < 0 {
		return "", fmt.Errorf("listing url %q has no id segment", listingURL)
	}
	id := p[idx+1:]
	if dot := strings.Index(id, "."); dot >= 0 {
		id = id[:dot]
	}
	if id == "" {
		return "", fmt.Errorf("listing url %q has an empty id", listingURL)
	}
	return id, nil
}
