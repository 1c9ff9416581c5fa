package autoria

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"autoria-scraper/models"
)

// Selectors for auto.ria.com search and listing pages. Keep them together:
// when the site changes markup this is the only block to touch.
const (
	selResultsCount  = "span#staticResultsCount"
	selListingCard   = "section.ticket-item"
	selCardLink      = "a.address"
	selPhoneLink     = "a.phone_show_link"
	selRemovedNotice = "div.notice_head"
	selSecureData    = `script[class^="js-user-secure-"], script[class*=" js-user-secure-"]`
	selTitle         = "h1.head"
	selPrice         = "div.price_value strong"
	selPriceUSD      = `div.price_value--additional span[data-currency="USD"]`
	selOdometer      = "div.base-information span"
	selSeller        = ".seller_info_name"
	selSellerLink    = ".seller_info_name a"
	selImage         = "div.carousel-inner div picture img"
	selImagesCount   = "div.count-photo.left span.count span.mhide"
	selVIN           = "span.label-vin"
	selVINAlt        = "span.vin-code"
	selPlate         = "span.state-num"

	removedMarker = "видалене"
)

func parseHTML(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// ExtractListingURLs returns the primary link of every listing card on a
// search results page, in page order. Relative links are resolved against
// base when base is non-nil. A card without a link means the selectors are
// stale and is reported as an extraction error.
func ExtractListingURLs(html string, base *url.URL) ([]string, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return nil, err
	}

	var (
		urls    []string
		missing error
	)
	doc.Find(selListingCard).EachWithBreak(func(i int, card *goquery.Selection) bool {
		href, ok := card.Find(selCardLink).First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			missing = &models.ExtractionError{Field: "listing_url", Err: fmt.Errorf("card %d has no %s", i, selCardLink)}
			return false
		}
		urls = append(urls, resolveURL(base, href))
		return true
	})
	if missing != nil {
		return nil, missing
	}
	return urls, nil
}

func resolveURL(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// IsRemoved reports whether the page carries the "listing removed" notice.
func IsRemoved(doc *goquery.Document) bool {
	removed := false
	doc.Find(selRemovedNotice).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(strings.TrimSpace(s.Text()), removedMarker) {
			removed = true
			return false
		}
		return true
	})
	return removed
}

// ExtractSecureData reads the (hash, expiry) pair that authorizes the phone
// lookup.
func ExtractSecureData(doc *goquery.Document) (models.SecureData, error) {
	script := doc.Find(selSecureData).First()
	if script.Length() == 0 {
		return models.SecureData{}, models.MissingField("secure_data")
	}
	hash, _ := script.Attr("data-hash")
	expires, _ := script.Attr("data-expires")
	if hash == "" || expires == "" {
		return models.SecureData{}, &models.ExtractionError{Field: "secure_data", Err: errors.New("empty data-hash or data-expires")}
	}
	return models.SecureData{Hash: hash, Expires: expires}, nil
}

// ExtractListing parses a rendered listing page. It returns
// models.ErrListingGone for removed listings and *models.ExtractionError when a
// required element is missing. PhoneNumber and DatetimeFound are left for the
// caller.
func ExtractListing(listingURL, html string) (models.Listing, models.SecureData, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return models.Listing{}, models.SecureData{}, err
	}

	if IsRemoved(doc) {
		return models.Listing{}, models.SecureData{}, models.ErrListingGone
	}

	secure, err := ExtractSecureData(doc)
	if err != nil {
		return models.Listing{}, models.SecureData{}, err
	}

	listing := models.Listing{URL: listingURL}

	if listing.Title, err = requiredText(doc, selTitle, "title"); err != nil {
		return models.Listing{}, secure, err
	}
	if listing.PriceUSD, err = extractPrice(doc); err != nil {
		return models.Listing{}, secure, err
	}

	odometer, err := requiredText(doc, selOdometer, "odometer")
	if err != nil {
		return models.Listing{}, secure, err
	}
	if listing.Odometer, err = parseOdometer(odometer); err != nil {
		return models.Listing{}, secure, &models.ExtractionError{Field: "odometer", Err: err}
	}

	if listing.Username, err = extractUsername(doc); err != nil {
		return models.Listing{}, secure, err
	}

	src, ok := doc.Find(selImage).First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return models.Listing{}, secure, models.MissingField("image_url")
	}
	listing.ImageURL = strings.TrimSpace(src)

	count, err := requiredText(doc, selImagesCount, "images_count")
	if err != nil {
		return models.Listing{}, secure, err
	}
	if listing.ImagesCount, err = parseImagesCount(count); err != nil {
		return models.Listing{}, secure, &models.ExtractionError{Field: "images_count", Err: err}
	}

	listing.CarVIN = extractVIN(doc)
	listing.CarNumber = extractPlate(doc)

	return listing, secure, nil
}

func requiredText(doc *goquery.Document, selector, field string) (string, error) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", models.MissingField(field)
	}
	return strings.TrimSpace(sel.Text()), nil
}

// extractPrice prefers the headline price and falls back to the USD figure
// in the secondary block when the headline is quoted in another currency.
func extractPrice(doc *goquery.Document) (int, error) {
	raw, err := requiredText(doc, selPrice, "price_usd")
	if err != nil {
		return 0, err
	}
	if !strings.Contains(raw, "$") {
		if raw, err = requiredText(doc, selPriceUSD, "price_usd"); err != nil {
			return 0, err
		}
	}
	price, err := parsePriceUSD(raw)
	if err != nil {
		return 0, &models.ExtractionError{Field: "price_usd", Err: err}
	}
	return price, nil
}

func extractUsername(doc *goquery.Document) (string, error) {
	name, err := requiredText(doc, selSeller, "username")
	if err != nil {
		return "", err
	}
	if href, ok := doc.Find(selSellerLink).First().Attr("href"); ok {
		if slug := usernameFromProfile(href); slug != "" {
			name = slug
		}
	}
	return name, nil
}

func extractVIN(doc *goquery.Document) string {
	for _, selector := range []string{selVIN, selVINAlt} {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			return strings.TrimSpace(sel.Text())
		}
	}
	return models.NotAvailable
}

// extractPlate reads only the plate element's own text nodes; nested spans
// hold region hints that are not part of the number.
func extractPlate(doc *goquery.Document) string {
	sel := doc.Find(selPlate).First()
	if sel.Length() == 0 {
		return models.NotAvailable
	}
	var own strings.Builder
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			own.WriteString(c.Text())
		}
	})
	plate := strings.ReplaceAll(strings.TrimSpace(own.String()), " ", "")
	if plate == "" {
		return models.NotAvailable
	}
	return plate
}
