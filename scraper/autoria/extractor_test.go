package autoria

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoria-scraper/models"
)

const testListingURL = "https://auto.ria.com/uk/auto_bmw_x5_38291054.html"

// listingFixture is a trimmed rendered listing page. Blocks can be replaced
// or dropped through the replacer passed to listingHTML.
const listingFixture = `<html><body>
<h1 class="head">BMW X5 2018</h1>
<div class="price_value"><strong>$35 500</strong></div>
<div class="price_value--additional"><span data-currency="USD">35 500</span> $</div>
<div class="base-information"><span>120</span> тис. км пробіг</div>
<div class="seller_info_name"><a href="/uk/dealer/avtosalon-kyiv.html">Автосалон Київ</a></div>
<div class="carousel-inner"><div><picture><img src="https://cdn.riastatic.com/photos/auto/1.jpg"></picture></div></div>
<div class="count-photo left"><span class="count"><span class="mhide">з 25</span></span></div>
<span class="label-vin">WBAKS410500A12345</span>
<span class="state-num">AA 1234 BB<span class="popup">Перевірити номер</span></span>
<script class="js-user-secure-38291054" data-hash="h4sh" data-expires="1700000000"></script>
<a class="phone_show_link" href="#">показати</a>
</body></html>`

func listingHTML(oldnew ...string) string {
	return strings.NewReplacer(oldnew...).Replace(listingFixture)
}

func TestExtractListing(t *testing.T) {
	t.Parallel()

	t.Run("extracts every field from a complete page", func(t *testing.T) {
		t.Parallel()

		listing, secure, err := ExtractListing(testListingURL, listingHTML())
		require.NoError(t, err)

		assert.Equal(t, testListingURL, listing.URL)
		assert.Equal(t, "BMW X5 2018", listing.Title)
		assert.Equal(t, 35500, listing.PriceUSD)
		assert.Equal(t, 120000, listing.Odometer)
		assert.Equal(t, "avtosalon-kyiv", listing.Username)
		assert.Equal(t, "https://cdn.riastatic.com/photos/auto/1.jpg", listing.ImageURL)
		assert.Equal(t, 25, listing.ImagesCount)
		assert.Equal(t, "WBAKS410500A12345", listing.CarVIN)
		assert.Equal(t, "AA1234BB", listing.CarNumber)
		assert.Equal(t, models.SecureData{Hash: "h4sh", Expires: "1700000000"}, secure)
	})

	t.Run("falls back to the USD figure when the headline is in another currency", func(t *testing.T) {
		t.Parallel()

		html := listingHTML(
			"<strong>$35 500</strong>", "<strong>32 000 €</strong>",
			`<span data-currency="USD">35 500</span>`, `<span data-currency="USD">34 800</span>`,
		)
		listing, _, err := ExtractListing(testListingURL, html)
		require.NoError(t, err)
		assert.Equal(t, 34800, listing.PriceUSD)
	})

	t.Run("uses the seller name when there is no profile link", func(t *testing.T) {
		t.Parallel()

		html := listingHTML(`<a href="/uk/dealer/avtosalon-kyiv.html">Автосалон Київ</a>`, "Олександр")
		listing, _, err := ExtractListing(testListingURL, html)
		require.NoError(t, err)
		assert.Equal(t, "Олександр", listing.Username)
	})

	t.Run("fills N/A when VIN and plate are absent", func(t *testing.T) {
		t.Parallel()

		html := listingHTML(
			`<span class="label-vin">WBAKS410500A12345</span>`, "",
			`<span class="state-num">AA 1234 BB<span class="popup">Перевірити номер</span></span>`, "",
		)
		listing, _, err := ExtractListing(testListingURL, html)
		require.NoError(t, err)
		assert.Equal(t, models.NotAvailable, listing.CarVIN)
		assert.Equal(t, models.NotAvailable, listing.CarNumber)
	})

	t.Run("reads the alternative VIN element", func(t *testing.T) {
		t.Parallel()

		html := listingHTML(`<span class="label-vin">`, `<span class="vin-code">`)
		listing, _, err := ExtractListing(testListingURL, html)
		require.NoError(t, err)
		assert.Equal(t, "WBAKS410500A12345", listing.CarVIN)
	})

	t.Run("reports a removed listing", func(t *testing.T) {
		t.Parallel()

		html := listingHTML("<h1", `<div class="notice_head">Оголошення видалене і не бере участі в пошуку</div><h1`)
		_, _, err := ExtractListing(testListingURL, html)
		assert.ErrorIs(t, err, models.ErrListingGone)
	})

	t.Run("a removed listing without secure data is still reported as removed", func(t *testing.T) {
		t.Parallel()

		html := `<html><body><div class="notice_head">Оголошення видалене</div></body></html>`
		_, _, err := ExtractListing(testListingURL, html)
		assert.ErrorIs(t, err, models.ErrListingGone)
	})

	t.Run("names the missing required field", func(t *testing.T) {
		t.Parallel()

		html := listingHTML(`<h1 class="head">BMW X5 2018</h1>`, "")
		_, _, err := ExtractListing(testListingURL, html)

		var extractErr *models.ExtractionError
		require.True(t, errors.As(err, &extractErr))
		assert.Equal(t, "title", extractErr.Field)
	})

	t.Run("requires secure data", func(t *testing.T) {
		t.Parallel()

		html := listingHTML(`<script class="js-user-secure-38291054" data-hash="h4sh" data-expires="1700000000"></script>`, "")
		_, _, err := ExtractListing(testListingURL, html)

		var extractErr *models.ExtractionError
		require.True(t, errors.As(err, &extractErr))
		assert.Equal(t, "secure_data", extractErr.Field)
	})

	t.Run("rejects an unparseable odometer", func(t *testing.T) {
		t.Parallel()

		html := listingHTML("<span>120</span>", "<span>новий</span>")
		_, _, err := ExtractListing(testListingURL, html)

		var extractErr *models.ExtractionError
		require.True(t, errors.As(err, &extractErr))
		assert.Equal(t, "odometer", extractErr.Field)
	})
}

func TestExtractListingURLs(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://auto.ria.com/uk/search/?indexName=auto")
	require.NoError(t, err)

	t.Run("returns card links in page order", func(t *testing.T) {
		t.Parallel()

		html := `<html><body>
<section class="ticket-item"><a class="address" href="https://auto.ria.com/uk/auto_bmw_x5_1.html">BMW</a></section>
<section class="ticket-item"><a class="address" href="/uk/auto_audi_a6_2.html">Audi</a></section>
<section class="ticket-item"><a class="address" href="https://auto.ria.com/uk/auto_vw_golf_3.html">VW</a></section>
</body></html>`

		urls, err := ExtractListingURLs(html, base)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://auto.ria.com/uk/auto_bmw_x5_1.html",
			"https://auto.ria.com/uk/auto_audi_a6_2.html",
			"https://auto.ria.com/uk/auto_vw_golf_3.html",
		}, urls)
	})

	t.Run("empty page has no URLs", func(t *testing.T) {
		t.Parallel()

		urls, err := ExtractListingURLs("<html><body></body></html>", base)
		require.NoError(t, err)
		assert.Empty(t, urls)
	})

	t.Run("card without link is an extraction error", func(t *testing.T) {
		t.Parallel()

		html := `<section class="ticket-item"><span>no link</span></section>`
		_, err := ExtractListingURLs(html, base)

		var extractErr *models.ExtractionError
		require.True(t, errors.As(err, &extractErr))
		assert.Equal(t, "listing_url", extractErr.Field)
	})
}
