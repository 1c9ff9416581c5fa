package autoria

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"autoria-scraper/config"
	"autoria-scraper/models"
	"autoria-scraper/utils"
)

// Page is one isolated browser tab.
type Page interface {
	Goto(url string) error
	WaitForSelector(selector string, timeout time.Duration) error
	Click(selector string) error
	InnerText(selector string) (string, error)
	Content() (string, error)
	// Close releases the tab. Calling it more than once is a no-op.
	Close() error
}

// PageOpener hands out isolated pages that share one browser process.
type PageOpener interface {
	NewPage(ctx context.Context) (Page, error)
}

// Browser owns a single headless Chrome; every NewPage call opens a new tab
// in it.
type Browser struct {
	cfg           *config.Config
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewBrowser(cfg *config.Config) (*Browser, error) {
	utils.Info("Launching Chrome browser...")
	allocCtx, allocCancel := chromedp.NewExecAllocator(
		context.Background(),
		utils.StealthOpts(cfg.Headless)...,
	)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Running with no actions starts the browser process and its first tab.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	utils.Success("Browser ready")
	return &Browser{
		cfg:           cfg,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

func (b *Browser) Close() {
	utils.Info("Closing browser...")
	b.browserCancel()
	b.allocCancel()
}

// NewPage opens a tab with its own randomized User-Agent. Cancelling ctx
// closes the tab.
func (b *Browser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	stop := context.AfterFunc(ctx, tabCancel)

	if err := chromedp.Run(tabCtx, emulation.SetUserAgentOverride(utils.RandomUserAgent())); err != nil {
		stop()
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	return &chromePage{
		ctx:     tabCtx,
		cancel:  tabCancel,
		stop:    stop,
		timeout: b.cfg.RenderTimeout,
	}, nil
}

type chromePage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stop    func() bool
	timeout time.Duration
	once    sync.Once
	err     error
}

func (p *chromePage) run(timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (p *chromePage) Goto(url string) error {
	if err := p.run(p.timeout, chromedp.Navigate(url), utils.HideWebDriver()); err != nil {
		return fmt.Errorf("navigate %s: %w", url, timeoutErr(err))
	}
	return nil
}

func (p *chromePage) WaitForSelector(selector string, timeout time.Duration) error {
	if err := p.run(timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, timeoutErr(err))
	}
	return nil
}

func (p *chromePage) Click(selector string) error {
	if err := p.run(p.timeout, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %s: %w", selector, timeoutErr(err))
	}
	return nil
}

func (p *chromePage) InnerText(selector string) (string, error) {
	var text string
	if err := p.run(p.timeout, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("text of %s: %w", selector, timeoutErr(err))
	}
	return text, nil
}

func (p *chromePage) Content() (string, error) {
	var html string
	if err := p.run(p.timeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("page content: %w", timeoutErr(err))
	}
	return html, nil
}

func (p *chromePage) Close() error {
	p.once.Do(func() {
		p.stop()
		// Cancel closes the target gracefully; tabCancel then frees the context.
		p.err = chromedp.Cancel(p.ctx)
		p.cancel()
		if errors.Is(p.err, context.Canceled) {
			p.err = nil
		}
	})
	return p.err
}

func timeoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrRenderTimeout, err)
	}
	return err
}

// renderListing opens the listing, reveals the phone block and returns the
// resulting DOM. The page is closed on every path.
func renderListing(ctx context.Context, opener PageOpener, listingURL string, timeout time.Duration) (html string, err error) {
	page, err := opener.NewPage(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			utils.Debug("close page %s: %v", listingURL, cerr)
		}
	}()

	if err := page.Goto(listingURL); err != nil {
		return "", err
	}
	if err := page.WaitForSelector(selPhoneLink, timeout); err != nil {
		return "", err
	}
	if err := page.Click(selPhoneLink); err != nil {
		return "", err
	}
	return page.Content()
}
