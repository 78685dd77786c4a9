// browser.go provides browser automation utilities for E2E testing.
// It wraps Rod to provide WebRTC-ready Chrome instances, one per participant.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrNoPage is returned when an operation needs a page before Navigate ran.
var ErrNoPage = errors.New("no page open, call Navigate first")

// BrowserConfig configures Chrome launch options.
type BrowserConfig struct {
	Headless bool          // Run in headless mode (default: true)
	Timeout  time.Duration // Default wait timeout for elements and scripts (default: 30s)
}

// DefaultBrowserConfig returns sensible defaults for E2E testing.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless: true,
		Timeout:  30 * time.Second,
	}
}

// BrowserClient wraps Rod with WebRTC-ready Chrome configuration.
// It keeps a single tab that later navigations reuse, so scripts run
// against whatever the participant is currently showing.
type BrowserClient struct {
	browser *rod.Browser
	timeout time.Duration

	mu   sync.Mutex
	page *rod.Page
}

// NewBrowserClient creates a Chrome with WebRTC flags.
// The browser is configured with:
//   - Fake media streams (no real camera/mic required)
//   - Auto-granted media permissions
//   - No sandbox (for container compatibility)
//   - Autoplay without user gesture
func NewBrowserClient(cfg BrowserConfig) (*BrowserClient, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBrowserConfig().Timeout
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("use-fake-device-for-media-stream").
		Set("use-fake-ui-for-media-stream").
		Set("autoplay-policy", "no-user-gesture-required")

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}

	return &BrowserClient{
		browser: browser,
		timeout: cfg.Timeout,
	}, nil
}

// Timeout returns the default wait timeout.
func (c *BrowserClient) Timeout() time.Duration { return c.timeout }

// Navigate opens url in the client's tab, bounded by maxWait.
// A non-positive maxWait falls back to the default timeout.
func (c *BrowserClient) Navigate(ctx context.Context, url string, maxWait time.Duration) (*rod.Page, error) {
	if maxWait <= 0 {
		maxWait = c.timeout
	}

	page, err := c.ensurePage()
	if err != nil {
		return nil, err
	}

	p := page.Context(ctx).Timeout(maxWait)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed waiting for %s to load: %w", url, err)
	}
	return page, nil
}

func (c *BrowserClient) ensurePage() (*rod.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page != nil {
		return c.page, nil
	}
	page, err := c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	c.page = page
	return page, nil
}

// Page returns the current page, or nil if none open.
func (c *BrowserClient) Page() *rod.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// scoped returns the current page bound to ctx and the default timeout.
// Callers must invoke the returned cancel func.
func (c *BrowserClient) scoped(ctx context.Context) (*rod.Page, func(), error) {
	page := c.Page()
	if page == nil {
		return nil, nil, ErrNoPage
	}
	p := page.Context(ctx).Timeout(c.timeout)
	return p, func() { p.CancelTimeout() }, nil
}

// WaitVisible waits until selector matches a visible element.
func (c *BrowserClient) WaitVisible(ctx context.Context, selector string) error {
	p, cancel, err := c.scoped(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	_, err = waitVisible(p, selector)
	return err
}

// waitVisible resolves selector on p. The element shares p's deadline, so
// it must not outlive the caller's scope.
func waitVisible(p *rod.Page, selector string) (*rod.Element, error) {
	el, err := p.Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element %s not found: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return nil, fmt.Errorf("element %s not visible: %w", selector, err)
	}
	return el, nil
}

// WaitText waits until selector matches an element whose text matches the
// JavaScript regex textRegex, and returns that text.
func (c *BrowserClient) WaitText(ctx context.Context, selector, textRegex string) (string, error) {
	p, cancel, err := c.scoped(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	el, err := p.ElementR(selector, textRegex)
	if err != nil {
		return "", fmt.Errorf("element %s with text /%s/ not found: %w", selector, textRegex, err)
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("failed to read %s text: %w", selector, err)
	}
	return text, nil
}

// Input replaces the value of the input matched by selector with text.
func (c *BrowserClient) Input(ctx context.Context, selector, text string) error {
	p, cancel, err := c.scoped(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	el, err := waitVisible(p, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to select %s: %w", selector, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("failed to type into %s: %w", selector, err)
	}
	return nil
}

// Click clicks the element matched by selector once it is visible.
func (c *BrowserClient) Click(ctx context.Context, selector string) error {
	p, cancel, err := c.scoped(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	el, err := waitVisible(p, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// Eval executes JavaScript and returns the result.
// Requires Navigate() to have been called first.
func (c *BrowserClient) Eval(ctx context.Context, js string) (*proto.RuntimeRemoteObject, error) {
	p, cancel, err := c.scoped(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	result, err := p.Eval(js)
	if err != nil {
		return nil, fmt.Errorf("eval failed: %w", err)
	}
	return result, nil
}

// ExecuteAsync evaluates js and waits for the promise it returns to settle.
func (c *BrowserClient) ExecuteAsync(ctx context.Context, js string) error {
	_, err := c.Eval(ctx, js)
	return err
}

// Close cleans up browser resources.
// Always call this (via defer) to prevent orphaned Chrome processes.
func (c *BrowserClient) Close() error {
	if c.browser != nil {
		return c.browser.Close()
	}
	return nil
}
