package services

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"autoria-scraper/models"
)

type SellerCount struct {
	Username string
	Listings int
}

type Report struct {
	State           string
	PagesFound      int
	URLsFound       int
	Saved           int
	Known           int
	Gone            int
	Failed          int
	NotEnqueued     int
	Duration        time.Duration
	DumpPath        string
	AveragePrice    float64
	MinPrice        int
	MaxPrice        int
	AverageOdometer float64
	MostExpensive   models.Listing
	TopSellers      []SellerCount
	WithVIN         int
	WithPlate       int
}

// GenerateReport summarizes a finished run and the cars it saved.
func GenerateReport(stats models.RunStats) Report {
	report := Report{
		State:       stats.State,
		PagesFound:  stats.PagesFound,
		URLsFound:   stats.URLsFound,
		Saved:       stats.Saved,
		Known:       stats.Known,
		Gone:        stats.Gone,
		Failed:      stats.Failed,
		NotEnqueued: stats.NotEnqueued,
		DumpPath:    stats.DumpPath,
	}
	if !stats.StartedAt.IsZero() && stats.FinishedAt.After(stats.StartedAt) {
		report.Duration = stats.FinishedAt.Sub(stats.StartedAt)
	}

	if len(stats.Listings) == 0 {
		return report
	}

	var (
		priceSum    int
		odometerSum int
		minPrice    = math.MaxInt
		maxPrice    = -1
		sellers     = make(map[string]int)
	)

	for _, l := range stats.Listings {
		priceSum += l.PriceUSD
		odometerSum += l.Odometer

		if l.PriceUSD > maxPrice {
			maxPrice = l.PriceUSD
			report.MostExpensive = l
		}
		if l.PriceUSD < minPrice {
			minPrice = l.PriceUSD
		}

		if l.CarVIN != "" && l.CarVIN != models.NotAvailable {
			report.WithVIN++
		}
		if l.CarNumber != "" && l.CarNumber != models.NotAvailable {
			report.WithPlate++
		}

		if name := strings.TrimSpace(l.Username); name != "" {
			sellers[name]++
		}
	}

	n := float64(len(stats.Listings))
	report.AveragePrice = float64(priceSum) / n
	report.AverageOdometer = float64(odometerSum) / n
	report.MinPrice = minPrice
	report.MaxPrice = maxPrice
	report.TopSellers = topSellers(sellers, 5)

	return report
}

// topSellers orders by listing count, then by name for a stable output.
func topSellers(counts map[string]int, limit int) []SellerCount {
	all := make([]SellerCount, 0, len(counts))
	for name, n := range counts {
		all = append(all, SellerCount{Username: name, Listings: n})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Listings == all[j].Listings {
			return all[i].Username < all[j].Username
		}
		return all[i].Listings > all[j].Listings
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

func PrintReport(w io.Writer, report Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌──────────────────────────────────────────────────────────────┐")
	fmt.Fprintln(w, "│                        Crawl Summary                         │")
	fmt.Fprintln(w, "├───────────────────────────────┬──────────────────────────────┤")
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Final State", report.State)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Search Pages", report.PagesFound)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Listing URLs Found", report.URLsFound)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Saved", report.Saved)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Already Known", report.Known)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Removed", report.Gone)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Failed", report.Failed)
	if report.NotEnqueued > 0 {
		fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Skipped on Shutdown", report.NotEnqueued)
	}
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Duration", report.Duration.Round(time.Second))
	fmt.Fprintln(w, "└───────────────────────────────┴──────────────────────────────┘")
	if report.DumpPath != "" {
		fmt.Fprintf(w, "Dump: %s\n", report.DumpPath)
	}

	if report.Saved == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌──────────────────────────────────────────────────────────────┐")
	fmt.Fprintln(w, "│                      New Cars This Run                       │")
	fmt.Fprintln(w, "├───────────────────────────────┬──────────────────────────────┤")
	fmt.Fprintf(w, "│ %-29s │ %-28.2f │\n", "Average Price (USD)", report.AveragePrice)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Minimum Price (USD)", report.MinPrice)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Maximum Price (USD)", report.MaxPrice)
	fmt.Fprintf(w, "│ %-29s │ %-28.0f │\n", "Average Odometer (km)", report.AverageOdometer)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "With VIN", report.WithVIN)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "With Plate Number", report.WithPlate)
	fmt.Fprintln(w, "└───────────────────────────────┴──────────────────────────────┘")

	if report.MostExpensive.Title != "" {
		fmt.Fprintf(w, "Most expensive: %s ($%d)\n", report.MostExpensive.Title, report.MostExpensive.PriceUSD)
		fmt.Fprintf(w, "                %s\n", report.MostExpensive.URL)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌─────┬──────────────────────────────────────────────┬──────────┐")
	fmt.Fprintln(w, "│ #   │ Top Sellers                                  │ Cars     │")
	fmt.Fprintln(w, "├─────┼──────────────────────────────────────────────┼──────────┤")
	for i, s := range report.TopSellers {
		fmt.Fprintf(w, "│ %-3d │ %-44s │ %-8d │\n", i+1, truncateText(s.Username, 44), s.Listings)
	}
	fmt.Fprintln(w, "└─────┴──────────────────────────────────────────────┴──────────┘")
}

func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
