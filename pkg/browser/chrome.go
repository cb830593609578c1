package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/chromedp"
)

var ErrUnavailable = errors.New("chrome renderer not available")

// Renderer returns the DOM of a page after its scripts have run.
type Renderer interface {
	Render(ctx context.Context, pageURL, waitSelector string) (string, error)
}

// ChromeRenderer drives a headless Chrome through chromedp. One browser
// process is shared; every Render call gets its own tab.
type ChromeRenderer struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
}

func NewChromeRenderer(execPath, userAgent string, timeout time.Duration) *ChromeRenderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-sandbox", true),
	)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromeRenderer{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		timeout:     timeout,
	}
}

// Render navigates to pageURL, waits for waitSelector (or the body when
// empty) and returns the outer HTML of the document.
func (c *ChromeRenderer) Render(ctx context.Context, pageURL, waitSelector string) (string, error) {
	if c == nil || c.allocCtx == nil {
		return "", ErrUnavailable
	}

	taskCtx, taskCancel := chromedp.NewContext(c.allocCtx)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, c.timeout)
	defer cancel()

	// the tab lives under the allocator, so tie it to the caller as well
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if waitSelector == "" {
		waitSelector = "body"
	}

	log.Printf("Chrome: rendering %s", pageURL)

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", pageURL, err)
	}

	log.Printf("Chrome: rendered %s (%d bytes)", pageURL, len(html))
	return html, nil
}

func (c *ChromeRenderer) Close() {
	if c != nil && c.allocCancel != nil {
		c.allocCancel()
	}
}
