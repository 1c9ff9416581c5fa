package models

import "time"

// NotAvailable fills optional text columns so they are never NULL.
const NotAvailable = "N/A"

// Listing is one car advertisement, one row of the cars table.
type Listing struct {
	ID            int64
	URL           string
	Title         string
	PriceUSD      int
	Odometer      int
	Username      string
	PhoneNumber   int64
	ImageURL      string
	ImagesCount   int
	CarNumber     string
	CarVIN        string
	DatetimeFound time.Time
}

// SecureData authorizes the phone lookup for a single rendered listing page.
type SecureData struct {
	Hash    string
	Expires string
}

type Outcome int

const (
	OutcomeSaved Outcome = iota
	OutcomeKnown
	OutcomeGone
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeKnown:
		return "known"
	case OutcomeGone:
		return "gone"
	default:
		return "failed"
	}
}

// ListingResult is what one listing pipeline reports back to the pool.
type ListingResult struct {
	URL     string
	Outcome Outcome
	Listing Listing
	Error   error
}

// RunStats summarizes one crawl run.
type RunStats struct {
	State       string
	PagesFound  int
	URLsFound   int
	Saved       int
	Known       int
	Gone        int
	Failed      int
	NotEnqueued int
	DumpPath    string
	StartedAt   time.Time
	FinishedAt  time.Time
	Listings    []Listing
}

// Record tallies a listing result.
func (s *RunStats) Record(r ListingResult) {
	switch r.Outcome {
	case OutcomeSaved:
		s.Saved++
		s.Listings = append(s.Listings, r.Listing)
	case OutcomeKnown:
		s.Known++
	case OutcomeGone:
		s.Gone++
	default:
		s.Failed++
	}
}

// Processed is the number of listing pipelines that ran to an outcome.
func (s RunStats) Processed() int {
	return s.Saved + s.Known + s.Gone + s.Failed
}
