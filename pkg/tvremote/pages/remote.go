package pages

import (
	"context"
	"net/url"

	"github.com/thesyncim/tvremote/pkg/tvremote"
)

// JoinCodePage is where the Remote types a join code.
type JoinCodePage struct {
	browser Browser
	baseURL string
}

// Visit opens the join code page with params.
func (p *JoinCodePage) Visit(ctx context.Context, params url.Values) error {
	u, err := BuildURL(p.baseURL, PathJoinCode, params)
	if err != nil {
		return err
	}
	if _, err := p.browser.Navigate(ctx, u, 0); err != nil {
		return err
	}
	return p.browser.WaitVisible(ctx, SelectorJoinCodeInput)
}

// EnterCode types code and submits it.
func (p *JoinCodePage) EnterCode(ctx context.Context, code string) error {
	if err := p.browser.Input(ctx, SelectorJoinCodeInput, code); err != nil {
		return err
	}
	return p.browser.Click(ctx, SelectorJoinCodeSubmit)
}

// MeetingNameInput is the meeting form on the remote control page.
type MeetingNameInput struct {
	browser Browser
}

// SubmitMeetingName types name and submits the form.
func (i *MeetingNameInput) SubmitMeetingName(ctx context.Context, name string) error {
	if err := i.browser.Input(ctx, SelectorMeetingInput, name); err != nil {
		return err
	}
	return i.browser.Click(ctx, SelectorMeetingSubmit)
}

// RemoteControlPage is shown once the Remote is paired.
type RemoteControlPage struct {
	visibility
	input *MeetingNameInput
}

// MeetingNameInput returns the meeting name form.
func (p *RemoteControlPage) MeetingNameInput() tvremote.MeetingNameInput { return p.input }

// Remote is the control participant.
type Remote struct {
	browser Browser
	join    *JoinCodePage
	control *RemoteControlPage
}

var _ tvremote.Remote = (*Remote)(nil)

// NewRemote creates a Remote participant on browser, serving pages from baseURL.
func NewRemote(browser Browser, baseURL string) *Remote {
	return &Remote{
		browser: browser,
		join:    &JoinCodePage{browser: browser, baseURL: baseURL},
		control: &RemoteControlPage{
			visibility: visibility{browser: browser, selector: SelectorRemoteControl},
			input:      &MeetingNameInput{browser: browser},
		},
	}
}

// Driver returns the Remote's browser as a script driver.
func (r *Remote) Driver() tvremote.Driver { return r.browser }

// JoinCodePage returns the join code page.
func (r *Remote) JoinCodePage() tvremote.JoinCodePage { return r.join }

// RemoteControlPage returns the remote control page.
func (r *Remote) RemoteControlPage() tvremote.RemoteControlPage { return r.control }
