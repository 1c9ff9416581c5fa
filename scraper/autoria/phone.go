package autoria

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autoria-scraper/models"
)

const phoneField = "formattedPhoneNumber"

// PhoneResolver looks up a listing's phone number through the site's phone
// endpoint, authorized by the secure data of the rendered page.
type PhoneResolver struct {
	fetcher     *Fetcher
	urlTemplate string
	attempts    int
	delay       time.Duration
}

func NewPhoneResolver(fetcher *Fetcher, urlTemplate string, attempts int, delay time.Duration) *PhoneResolver {
	return &PhoneResolver{
		fetcher:     fetcher,
		urlTemplate: urlTemplate,
		attempts:    attempts,
		delay:       delay,
	}
}

// LookupURL fills {car_id}, {hash} and {expires} in the endpoint template.
func (r *PhoneResolver) LookupURL(carID string, secure models.SecureData) string {
	return strings.NewReplacer(
		"{car_id}", carID,
		"{hash}", secure.Hash,
		"{expires}", secure.Expires,
	).Replace(r.urlTemplate)
}

// Resolve returns the normalized phone number, or an error wrapping
// models.ErrPhoneUnavailable when the endpoint yields nothing usable.
func (r *PhoneResolver) Resolve(ctx context.Context, listingURL string, secure models.SecureData) (int64, error) {
	carID, err := listingID(listingURL)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrPhoneUnavailable, err)
	}

	payload := r.fetcher.FetchWithRetry(ctx, r.LookupURL(carID, secure), RetryOptions{
		Attempts:  r.attempts,
		BaseDelay: r.delay,
		Format:    FormatJSON,
	})
	if payload == nil {
		return 0, fmt.Errorf("%w: lookup failed for car %s", models.ErrPhoneUnavailable, carID)
	}

	formatted, _ := payload.JSON[phoneField].(string)
	if strings.TrimSpace(formatted) == "" {
		return 0, fmt.Errorf("%w: empty %s for car %s", models.ErrPhoneUnavailable, phoneField, carID)
	}

	phone, err := normalizePhone(formatted)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrPhoneUnavailable, err)
	}
	return phone, nil
}
