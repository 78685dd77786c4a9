package pages

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/thesyncim/tvremote/pkg/tvremote"
)

// CalendarPage is the TV landing page that shows the join code.
type CalendarPage struct {
	browser Browser
	baseURL string
}

// Visit opens the calendar with params, bounded by maxWait.
func (p *CalendarPage) Visit(ctx context.Context, params url.Values, maxWait time.Duration) error {
	u, err := BuildURL(p.baseURL, PathCalendar, params)
	if err != nil {
		return err
	}
	if _, err := p.browser.Navigate(ctx, u, maxWait); err != nil {
		return err
	}
	return p.browser.WaitVisible(ctx, SelectorCalendar)
}

// MeetingPage is the TV in-meeting view.
type MeetingPage struct {
	visibility
}

// Name returns the meeting name the TV displays.
func (p *MeetingPage) Name(ctx context.Context) (string, error) {
	name, err := p.browser.WaitText(ctx, SelectorMeetingName, `.+`)
	return strings.TrimSpace(name), err
}

// ShareView is shown on the TV while a share-only Remote is paired.
type ShareView struct {
	visibility
}

// TV is the display participant.
type TV struct {
	browser  Browser
	calendar *CalendarPage
	meeting  *MeetingPage
	share    *ShareView
}

var _ tvremote.TV = (*TV)(nil)

// NewTV creates a TV participant on browser, serving pages from baseURL.
func NewTV(browser Browser, baseURL string) *TV {
	return &TV{
		browser:  browser,
		calendar: &CalendarPage{browser: browser, baseURL: baseURL},
		meeting:  &MeetingPage{visibility{browser: browser, selector: SelectorMeeting}},
		share:    &ShareView{visibility{browser: browser, selector: SelectorShareView}},
	}
}

// Driver returns the TV's browser as a script driver.
func (tv *TV) Driver() tvremote.Driver { return tv.browser }

// JoinCode waits for the calendar to render a join code and returns it.
func (tv *TV) JoinCode(ctx context.Context) (string, error) {
	code, err := tv.browser.WaitText(ctx, SelectorJoinCode, joinCodePattern)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

// CalendarPage returns the calendar page.
func (tv *TV) CalendarPage() tvremote.CalendarPage { return tv.calendar }

// MeetingPage returns the meeting page.
func (tv *TV) MeetingPage() tvremote.MeetingPage { return tv.meeting }

// Meeting returns the concrete meeting page.
func (tv *TV) Meeting() *MeetingPage { return tv.meeting }

// ShareView returns the share-only status view.
func (tv *TV) ShareView() *ShareView { return tv.share }
