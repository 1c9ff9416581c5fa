package autoria

import (
	"context"
	"sync"

	"autoria-scraper/models"
	"autoria-scraper/utils"
)

// ProcessFunc runs the full pipeline for one listing URL.
type ProcessFunc func(ctx context.Context, listingURL string) models.ListingResult

// WorkerPool runs at most `workers` listing pipelines at a time. The jobs
// channel is unbuffered, so a URL is only handed out once a worker is free.
type WorkerPool struct {
	process ProcessFunc
	workers int
	jobs    chan string
	results chan models.ListingResult
	wg      sync.WaitGroup
}

func NewWorkerPool(process ProcessFunc, workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		process: process,
		workers: workers,
	}
}

// Run feeds urls to the workers and gathers every result. A failing listing
// never stops the others. When ctx is cancelled no further URLs are handed
// out; pipelines already running finish on a context detached from the
// cancellation. The returned count is the number of URLs never started.
func (p *WorkerPool) Run(ctx context.Context, urls []string) ([]models.ListingResult, int) {
	if len(urls) == 0 {
		return nil, 0
	}

	p.jobs = make(chan string)
	p.results = make(chan models.ListingResult, len(urls))

	workerCount := p.workers
	if len(urls) < workerCount {
		workerCount = len(urls)
	}

	workCtx := context.WithoutCancel(ctx)
	p.wg.Add(workerCount)
	for i := 1; i <= workerCount; i++ {
		go p.worker(workCtx, i)
	}

	enqueued := 0
feed:
	for _, url := range urls {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case p.jobs <- url:
			enqueued++
		}
	}
	close(p.jobs)
	if enqueued < len(urls) {
		utils.Warn("Shutdown requested: %d listings left unprocessed", len(urls)-enqueued)
	}

	go func() {
		p.wg.Wait()
		close(p.results)
	}()

	return p.collect(), len(urls) - enqueued
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for listingURL := range p.jobs {
		utils.Debug("worker %d picked %s", id, listingURL)
		p.results <- p.process(ctx, listingURL)
	}
}

func (p *WorkerPool) collect() []models.ListingResult {
	all := make([]models.ListingResult, 0, cap(p.results))
	for result := range p.results {
		all = append(all, result)
	}
	return all
}
