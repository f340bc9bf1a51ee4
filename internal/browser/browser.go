// Package browser drives a headless Chrome through the pages whose content
// only exists after their scripts ran.
package browser

import (
	"context"
	"time"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/chromedp/chromedp"
)

// Session is one browser tab.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// Exec evaluates js and discards its result.
	Exec(ctx context.Context, js string) error
	String(ctx context.Context, js string) (string, error)
	Strings(ctx context.Context, js string) ([]string, error)
	Close()
}

// Chrome is a Session backed by chromedp.
type Chrome struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewChrome starts a browser with a single tab.
func NewChrome(cfg *global.BrowserConfig) (*Chrome, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(1920, 1080),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(global.Logger.Debug().Msgf))
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, ec.ErrBrowserFailed.Clone().Warp(err)
	}

	return &Chrome{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}, nil
}

// run executes actions on the tab, giving up when ctx is done.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ec.ErrBrowserFailed.Clone().Warp(err)
	}
	return nil
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (c *Chrome) Exec(ctx context.Context, js string) error {
	return c.run(ctx, chromedp.Evaluate(js, nil))
}

func (c *Chrome) String(ctx context.Context, js string) (string, error) {
	var out string
	err := c.run(ctx, chromedp.Evaluate(js, &out))
	return out, err
}

func (c *Chrome) Strings(ctx context.Context, js string) ([]string, error) {
	var out []string
	err := c.run(ctx, chromedp.Evaluate(js, &out))
	return out, err
}

func (c *Chrome) Close() {
	c.cancel()
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
