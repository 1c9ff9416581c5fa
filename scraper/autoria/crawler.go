package autoria

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"autoria-scraper/config"
	"autoria-scraper/models"
	"autoria-scraper/utils"
)

type State string

const (
	StateIdle                   State = "Idle"
	StateDiscoveringPages       State = "DiscoveringPages"
	StateDiscoveringListingURLs State = "DiscoveringListingUrls"
	StateParsingListings        State = "ParsingListings"
	StateDumping                State = "Dumping"
	StateDone                   State = "Done"
	StateAborted                State = "Aborted"
)

// Store is the dedup and persistence gateway the crawler writes through.
type Store interface {
	Exists(ctx context.Context, url string) (bool, error)
	Insert(ctx context.Context, listing models.Listing) error
}

// Dumper writes the end-of-run data snapshot and returns its path.
type Dumper interface {
	Dump(ctx context.Context) (string, error)
}

// PhoneLookup resolves the seller phone of a rendered listing.
type PhoneLookup interface {
	Resolve(ctx context.Context, listingURL string, secure models.SecureData) (int64, error)
}

// PageDiscoverer finds search pages and the listing URLs on them.
type PageDiscoverer interface {
	DiscoverPages(ctx context.Context) (string, int)
	CollectListingURLs(ctx context.Context, firstPageHTML string, totalPages int) []string
}

// Crawler sequences one crawl run: pages → listing URLs → listings → dump.
type Crawler struct {
	cfg     *config.Config
	pages   PageDiscoverer
	opener  PageOpener
	phones  PhoneLookup
	store   Store
	dumper  Dumper
	workers int

	mu    sync.Mutex
	state State
}

func NewCrawler(cfg *config.Config, pages PageDiscoverer, opener PageOpener, phones PhoneLookup, store Store, dumper Dumper) *Crawler {
	return &Crawler{
		cfg:     cfg,
		pages:   pages,
		opener:  opener,
		phones:  phones,
		store:   store,
		dumper:  dumper,
		workers: cfg.MaxConcurrency,
		state:   StateIdle,
	}
}

func (c *Crawler) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Crawler) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	utils.Debug("crawler state → %s", s)
}

// Run executes the whole crawl. Per-page and per-listing failures are logged
// and counted; only a failed dump aborts the run with an error.
func (c *Crawler) Run(ctx context.Context) (stats models.RunStats, err error) {
	stats.StartedAt = time.Now()
	defer func() {
		stats.FinishedAt = time.Now()
		stats.State = string(c.State())
	}()

	utils.Section("Discovering pages")
	c.setState(StateDiscoveringPages)
	firstPage, pages := c.pages.DiscoverPages(ctx)
	stats.PagesFound = pages
	utils.Info("Total pages found: %d", pages)

	c.setState(StateDiscoveringListingURLs)
	var urls []string
	if pages > 0 {
		urls = c.pages.CollectListingURLs(ctx, firstPage, pages)
	}
	stats.URLsFound = len(urls)
	utils.Info("Total cars URLs found: %d", len(urls))

	utils.Section("Parsing listings")
	c.setState(StateParsingListings)
	pool := NewWorkerPool(c.processListing, c.workers)
	results, notEnqueued := pool.Run(ctx, urls)
	for _, r := range results {
		stats.Record(r)
	}
	stats.NotEnqueued = notEnqueued
	utils.Success("Listings processed: %d | saved %d | known %d | gone %d | failed %d",
		stats.Processed(), stats.Saved, stats.Known, stats.Gone, stats.Failed)

	utils.Section("Dumping")
	c.setState(StateDumping)
	path, dumpErr := c.dumper.Dump(context.WithoutCancel(ctx))
	if dumpErr != nil {
		c.setState(StateAborted)
		return stats, fmt.Errorf("dump: %w", dumpErr)
	}
	stats.DumpPath = path
	utils.Success("Database dump saved to %s", path)

	c.setState(StateDone)
	return stats, nil
}

// processListing runs exists → render → extract → phone → insert for one
// URL. It never panics past the pool and reports every failure as a result.
func (c *Crawler) processListing(ctx context.Context, listingURL string) (result models.ListingResult) {
	result = models.ListingResult{URL: listingURL, Outcome: models.OutcomeFailed}
	defer func() {
		if r := recover(); r != nil {
			result.Outcome = models.OutcomeFailed
			result.Error = fmt.Errorf("panic: %v", r)
			utils.Error("Error parsing car details from %s: %v", listingURL, result.Error)
		}
	}()

	exists, err := c.store.Exists(ctx, listingURL)
	if err != nil {
		result.Error = err
		utils.Error("Existence check failed for %s: %v", listingURL, err)
		return result
	}
	if exists {
		result.Outcome = models.OutcomeKnown
		utils.Info("Car already exists in the database: %s", listingURL)
		return result
	}

	if err := utils.Sleep(ctx, utils.RandomDelay(c.cfg.MinDelay, c.cfg.MaxDelay)); err != nil {
		result.Error = err
		return result
	}

	utils.Info("Parsing car details from %s", listingURL)
	html, err := renderListing(ctx, c.opener, listingURL, c.cfg.RenderTimeout)
	if err != nil {
		result.Error = err
		utils.Error("Error rendering %s: %v", listingURL, err)
		return result
	}

	listing, secure, err := ExtractListing(listingURL, html)
	if errors.Is(err, models.ErrListingGone) {
		result.Outcome = models.OutcomeGone
		utils.Info("Car listing has been removed: %s", listingURL)
		return result
	}
	if err != nil {
		result.Error = err
		utils.Error("Error parsing car details from %s: %v", listingURL, err)
		return result
	}

	phone, err := c.phones.Resolve(ctx, listingURL, secure)
	if err != nil {
		result.Error = err
		utils.Error("Phone number not found for car %s: %v", listingURL, err)
		return result
	}
	listing.PhoneNumber = phone

	if err := c.store.Insert(ctx, listing); err != nil {
		if errors.Is(err, models.ErrDuplicateListing) {
			result.Outcome = models.OutcomeKnown
			utils.Warn("Car was stored concurrently, skipping: %s", listingURL)
			return result
		}
		result.Error = err
		utils.Error("Failed to save %s: %v", listingURL, err)
		return result
	}

	result.Outcome = models.OutcomeSaved
	result.Listing = listing
	utils.Success("✓ %s | $%d | %d km", truncate(listing.Title, 40), listing.PriceUSD, listing.Odometer)
	return result
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
