package autoria

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"autoria-scraper/utils"
)

// Scanner discovers how many search pages exist and collects listing URLs
// from all of them.
type Scanner struct {
	opener  PageOpener
	fetcher *Fetcher
	perPage int
	workers int
	timeout time.Duration
}

// NewScanner fetches at most workers search pages at a time.
func NewScanner(opener PageOpener, fetcher *Fetcher, perPage, workers int, timeout time.Duration) *Scanner {
	if workers < 1 {
		workers = 1
	}
	return &Scanner{
		opener:  opener,
		fetcher: fetcher,
		perPage: perPage,
		workers: workers,
		timeout: timeout,
	}
}

// DiscoverPages renders page 0 and derives the page count from the results
// counter. Any failure yields ("", 0): nothing to crawl, not a fatal error.
func (s *Scanner) DiscoverPages(ctx context.Context) (string, int) {
	html, results, err := s.renderFirstPage(ctx)
	if err != nil {
		utils.Error("Error fetching the first page: %v", err)
		return "", 0
	}
	return html, pageCount(results, s.perPage)
}

func (s *Scanner) renderFirstPage(ctx context.Context) (string, int, error) {
	page, err := s.opener.NewPage(ctx)
	if err != nil {
		return "", 0, err
	}
	defer page.Close()

	if err := page.Goto(s.fetcher.PageURL(0)); err != nil {
		return "", 0, err
	}
	if err := page.WaitForSelector(selResultsCount, s.timeout); err != nil {
		return "", 0, err
	}
	text, err := page.InnerText(selResultsCount)
	if err != nil {
		return "", 0, err
	}
	results, err := parseResultsCount(text)
	if err != nil {
		return "", 0, err
	}
	html, err := page.Content()
	if err != nil {
		return "", 0, err
	}
	return html, results, nil
}

// CollectListingURLs merges the URLs of page 0 with those of pages
// 1..totalPages, fetched by at most s.workers goroutines. Order is page 0
// first, then page index order. A page that fails to download or parse contributes nothing.
func (s *Scanner) CollectListingURLs(ctx context.Context, firstPageHTML string, totalPages int) []string {
	base := s.fetcher.SearchURL()

	var urls []string
	if firstPageHTML != "" {
		first, err := ExtractListingURLs(firstPageHTML, base)
		if err != nil {
			utils.Error("Failed to extract listing URLs from page 0: %v", err)
		}
		urls = append(urls, first...)
	}
	if totalPages <= 0 {
		return urls
	}

	perPage := make([][]string, totalPages+1)
	var g errgroup.Group
	g.SetLimit(s.workers)
	for page := 1; page <= totalPages; page++ {
		g.Go(func() error {
			perPage[page] = s.fetchListingURLs(ctx, page)
			return nil
		})
	}
	_ = g.Wait()

	for _, pageURLs := range perPage[1:] {
		urls = append(urls, pageURLs...)
	}
	return urls
}

func (s *Scanner) fetchListingURLs(ctx context.Context, page int) []string {
	html, ok := s.fetcher.FetchPage(ctx, page)
	if !ok {
		return nil
	}
	urls, err := ExtractListingURLs(html, s.fetcher.SearchURL())
	if err != nil {
		utils.Error("Failed to extract listing URLs from page %d: %v", page, err)
		return nil
	}
	utils.Debug("Page %d: %d listing URLs", page, len(urls))
	return urls
}
