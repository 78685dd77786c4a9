package tvremote

import (
	"context"
	"net/url"
	"time"
)

// Driver runs scripts inside a participant's browser page.
type Driver interface {
	// ExecuteAsync evaluates script in the page and waits for the promise
	// it returns to settle.
	ExecuteAsync(ctx context.Context, script string) error
}

// CalendarPage is the TV's landing page.
type CalendarPage interface {
	Visit(ctx context.Context, params url.Values, maxWait time.Duration) error
}

// MeetingPage is the TV's in-meeting view.
type MeetingPage interface {
	WaitForVisible(ctx context.Context) error
}

// JoinCodePage is where the Remote enters a join code.
type JoinCodePage interface {
	Visit(ctx context.Context, params url.Values) error
	EnterCode(ctx context.Context, code string) error
}

// MeetingNameInput submits a meeting name from the Remote.
type MeetingNameInput interface {
	SubmitMeetingName(ctx context.Context, name string) error
}

// RemoteControlPage is shown on the Remote once paired.
type RemoteControlPage interface {
	WaitForVisible(ctx context.Context) error
	MeetingNameInput() MeetingNameInput
}

// TV is the display-side participant.
type TV interface {
	Driver() Driver
	// JoinCode returns the short-lived code currently shown by the TV.
	JoinCode(ctx context.Context) (string, error)
	CalendarPage() CalendarPage
	MeetingPage() MeetingPage
}

// Remote is the control-side participant.
type Remote interface {
	Driver() Driver
	JoinCodePage() JoinCodePage
	RemoteControlPage() RemoteControlPage
}
