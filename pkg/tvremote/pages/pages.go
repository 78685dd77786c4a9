// Package pages implements the TV and Remote page objects on top of a Rod
// browser client.
package pages

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/thesyncim/tvremote/pkg/tvremote"
)

// DOM hooks shared with the app under test.
const (
	SelectorCalendar       = "#calendar"
	SelectorJoinCode       = "#join-code"
	SelectorMeeting        = "#meeting"
	SelectorMeetingName    = "#meeting-name"
	SelectorShareView      = "#share-view"
	SelectorJoinCodeInput  = "#join-code-input"
	SelectorJoinCodeSubmit = "#join-code-submit"
	SelectorRemoteControl  = "#remote-control"
	SelectorMeetingInput   = "#meeting-name-input"
	SelectorMeetingSubmit  = "#meeting-name-submit"
)

// Paths served by the app under test.
const (
	PathCalendar = "/tv/calendar"
	PathJoinCode = "/remote/join"
)

// joinCodePattern matches a fully rendered join code.
const joinCodePattern = `^\d{6}$`

// Browser is the subset of testutil.BrowserClient the page objects use.
type Browser interface {
	tvremote.Driver
	Navigate(ctx context.Context, url string, maxWait time.Duration) (*rod.Page, error)
	WaitVisible(ctx context.Context, selector string) error
	WaitText(ctx context.Context, selector, textRegex string) (string, error)
	Input(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
}

// BuildURL joins base and path and appends params, if any.
func BuildURL(base, path string, params url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return "", fmt.Errorf("invalid app url %q: %w", base, err)
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String(), nil
}

// visibility waits for one selector.
type visibility struct {
	browser  Browser
	selector string
}

func (v visibility) WaitForVisible(ctx context.Context) error {
	return v.browser.WaitVisible(ctx, v.selector)
}
