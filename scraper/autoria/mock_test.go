package autoria

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"autoria-scraper/models"
)

// fakePage is a Page whose behaviour is set per test. Unset functions
// succeed with zero values.
type fakePage struct {
	GotoFn      func(url string) error
	WaitFn      func(selector string) error
	ClickFn     func(selector string) error
	InnerTextFn func(selector string) (string, error)
	ContentFn   func() (string, error)
	OnClose     func()

	closes atomic.Int32
}

func (p *fakePage) Goto(url string) error {
	if p.GotoFn != nil {
		return p.GotoFn(url)
	}
	return nil
}

func (p *fakePage) WaitForSelector(selector string, _ time.Duration) error {
	if p.WaitFn != nil {
		return p.WaitFn(selector)
	}
	return nil
}

func (p *fakePage) Click(selector string) error {
	if p.ClickFn != nil {
		return p.ClickFn(selector)
	}
	return nil
}

func (p *fakePage) InnerText(selector string) (string, error) {
	if p.InnerTextFn != nil {
		return p.InnerTextFn(selector)
	}
	return "", nil
}

func (p *fakePage) Content() (string, error) {
	if p.ContentFn != nil {
		return p.ContentFn()
	}
	return "", nil
}

func (p *fakePage) Close() error {
	if p.closes.Add(1) == 1 && p.OnClose != nil {
		p.OnClose()
	}
	return nil
}

// fakeOpener hands out pages from NewPageFn and keeps every page it opened.
type fakeOpener struct {
	NewPageFn func(ctx context.Context) (*fakePage, error)

	mu    sync.Mutex
	pages []*fakePage
}

func (o *fakeOpener) NewPage(ctx context.Context) (Page, error) {
	p, err := o.NewPageFn(ctx)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.pages = append(o.pages, p)
	o.mu.Unlock()
	return p, nil
}

func (o *fakeOpener) opened() []*fakePage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakePage(nil), o.pages...)
}

type fakeDiscoverer struct {
	DiscoverPagesFn      func(ctx context.Context) (string, int)
	CollectListingURLsFn func(ctx context.Context, firstPageHTML string, totalPages int) []string
}

func (d *fakeDiscoverer) DiscoverPages(ctx context.Context) (string, int) {
	return d.DiscoverPagesFn(ctx)
}

func (d *fakeDiscoverer) CollectListingURLs(ctx context.Context, firstPageHTML string, totalPages int) []string {
	return d.CollectListingURLsFn(ctx, firstPageHTML, totalPages)
}

type fakePhones struct {
	ResolveFn func(ctx context.Context, listingURL string, secure models.SecureData) (int64, error)
}

func (p *fakePhones) Resolve(ctx context.Context, listingURL string, secure models.SecureData) (int64, error) {
	if p.ResolveFn != nil {
		return p.ResolveFn(ctx, listingURL, secure)
	}
	return 380671234567, nil
}

// memStore is an in-memory Store with the same duplicate semantics as the
// cars table's unique url constraint.
type memStore struct {
	InsertFn func(ctx context.Context, l models.Listing) error

	mu       sync.Mutex
	listings map[string]models.Listing
	checks   atomic.Int32
}

func newMemStore(known ...string) *memStore {
	s := &memStore{listings: make(map[string]models.Listing)}
	for _, u := range known {
		s.listings[u] = models.Listing{URL: u}
	}
	return s
}

func (s *memStore) Exists(_ context.Context, url string) (bool, error) {
	s.checks.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.listings[url]
	return ok, nil
}

func (s *memStore) Insert(ctx context.Context, l models.Listing) error {
	if s.InsertFn != nil {
		if err := s.InsertFn(ctx, l); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[l.URL]; ok {
		return models.ErrDuplicateListing
	}
	s.listings[l.URL] = l
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listings)
}

type fakeDumper struct {
	DumpFn func(ctx context.Context) (string, error)
	calls  atomic.Int32
}

func (d *fakeDumper) Dump(ctx context.Context) (string, error) {
	d.calls.Add(1)
	if d.DumpFn != nil {
		return d.DumpFn(ctx)
	}
	return "dumps/dump_2025-01-31_18-04-05.sql", nil
}
