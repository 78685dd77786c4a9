// Package tvremote sequences two-party TV/Remote end-to-end scenarios.
//
// A Session holds a TV participant and a Remote participant and drives
// their page objects through pairing, meeting-join and disconnect flows.
// The Session keeps no connection state of its own; that lives in the
// browser pages and the signaling backend behind them.
package tvremote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/thesyncim/tvremote/pkg/tvremote/internal"
)

// MeetingNamePrefix prefixes generated meeting names.
const MeetingNamePrefix = "ui-test-"

// DisconnectScript tears down the in-page signaling client. It resolves
// whether disconnect() succeeds, rejects, or throws synchronously.
const DisconnectScript = `() => new Promise((resolve) => {
	try {
		Promise.resolve(window.signalingClient.disconnect()).then(resolve, resolve);
	} catch (err) {
		resolve();
	}
})`

// Option configures a Session.
type Option func(*Session) error

// WithLogger sets the logger used for step tracing and cleanup results.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) error {
		s.log = log
		return nil
	}
}

// WithClock sets the clock used to generate default meeting names.
func WithClock(clock internal.Clock) Option {
	return func(s *Session) error {
		if clock == nil {
			return errors.New("clock must not be nil")
		}
		s.clock = clock
		return nil
	}
}

// Session coordinates one TV participant and one Remote participant.
type Session struct {
	tv     TV
	remote Remote
	cfg    Config
	log    zerolog.Logger
	clock  internal.Clock
}

// NewSession creates a Session over the given participants.
// The participants and config are fixed for the Session's lifetime.
func NewSession(tv TV, remote Remote, cfg Config, opts ...Option) (*Session, error) {
	if tv == nil {
		return nil, errors.New("tv participant is required")
	}
	if remote == nil {
		return nil, errors.New("remote participant is required")
	}
	if cfg.MaxPageLoadWait <= 0 {
		cfg.MaxPageLoadWait = DefaultMaxPageLoadWait
	}

	s := &Session{
		tv:     tv,
		remote: remote,
		cfg:    cfg,
		log:    zerolog.Nop(),
		clock:  internal.SystemClock{},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// TV returns the TV participant.
func (s *Session) TV() TV { return s.tv }

// Remote returns the Remote participant.
func (s *Session) Remote() Remote { return s.remote }

// IsBackendEnabled reports whether a pairing code is configured.
func (s *Session) IsBackendEnabled() bool {
	return s.cfg.PairingCode != ""
}

// ConnectToTV pairs the Remote with the TV's join code and waits for the
// Remote control page.
func (s *Session) ConnectToTV(ctx context.Context) error {
	if err := s.submitJoinCode(ctx, nil); err != nil {
		return err
	}
	if err := s.remote.RemoteControlPage().WaitForVisible(ctx); err != nil {
		return fmt.Errorf("failed waiting for remote control page: %w", err)
	}
	return nil
}

// ConnectScreenshareOnlyToTV pairs the Remote in share-only mode.
// It does not wait for any page to become visible.
func (s *Session) ConnectScreenshareOnlyToTV(ctx context.Context) error {
	return s.submitJoinCode(ctx, url.Values{"share": {"true"}})
}

// ForceDisconnectTV disconnects the TV's signaling client, best effort.
func (s *Session) ForceDisconnectTV(ctx context.Context) CleanupResult {
	return s.forceDisconnect(ctx, "disconnect-tv", s.tv.Driver())
}

// ForceDisconnectRemote disconnects the Remote's signaling client, best effort.
func (s *Session) ForceDisconnectRemote(ctx context.Context) CleanupResult {
	return s.forceDisconnect(ctx, "disconnect-remote", s.remote.Driver())
}

func (s *Session) forceDisconnect(ctx context.Context, step string, driver Driver) CleanupResult {
	return BestEffort(ctx, s.log, step, func(ctx context.Context) error {
		if driver == nil {
			return errors.New("no driver")
		}
		return driver.ExecuteAsync(ctx, DisconnectScript)
	})
}

// ResetConnection disconnects both sides. Each side is attempted exactly
// once regardless of the other's outcome.
func (s *Session) ResetConnection(ctx context.Context) {
	s.ForceDisconnectTV(ctx)
	s.ForceDisconnectRemote(ctx)
}

// JoinMeeting submits a meeting name from the Remote and waits for the TV
// to enter the meeting. An empty name is replaced by a generated
// "ui-test-<unix millis>" name. It returns the name submitted.
func (s *Session) JoinMeeting(ctx context.Context, name string) (string, error) {
	control := s.remote.RemoteControlPage()
	if err := control.WaitForVisible(ctx); err != nil {
		return "", fmt.Errorf("failed waiting for remote control page: %w", err)
	}

	if name == "" {
		name = s.defaultMeetingName()
	}
	s.log.Debug().Str("meeting", name).Msg("joining meeting")

	if err := control.MeetingNameInput().SubmitMeetingName(ctx, name); err != nil {
		return "", fmt.Errorf("failed to submit meeting name %q: %w", name, err)
	}
	if err := s.tv.MeetingPage().WaitForVisible(ctx); err != nil {
		return "", fmt.Errorf("failed waiting for tv meeting page: %w", err)
	}
	return name, nil
}

func (s *Session) defaultMeetingName() string {
	return MeetingNamePrefix + strconv.FormatInt(s.clock.Now().UnixMilli(), 10)
}

// StartRemote opens the Remote join-code page with params and enters code.
func (s *Session) StartRemote(ctx context.Context, code string, params url.Values) error {
	page := s.remote.JoinCodePage()
	if err := page.Visit(ctx, params); err != nil {
		return fmt.Errorf("failed to open join code page: %w", err)
	}
	if err := page.EnterCode(ctx, code); err != nil {
		return fmt.Errorf("failed to enter join code: %w", err)
	}
	return nil
}

// StartTV opens the TV calendar page carrying the configured pairing code.
func (s *Session) StartTV(ctx context.Context) error {
	params := url.Values{"pairingCode": {s.cfg.PairingCode}}
	if err := s.tv.CalendarPage().Visit(ctx, params, s.cfg.MaxPageLoadWait); err != nil {
		return fmt.Errorf("failed to open calendar page: %w", err)
	}
	return nil
}

// submitJoinCode starts the TV, reads its join code and hands it to the
// Remote along with params.
func (s *Session) submitJoinCode(ctx context.Context, params url.Values) error {
	if err := s.StartTV(ctx); err != nil {
		return err
	}

	code, err := s.tv.JoinCode(ctx)
	if err != nil {
		return fmt.Errorf("failed to read tv join code: %w", err)
	}
	s.log.Debug().Str("code", code).Msg("tv join code")

	return s.StartRemote(ctx, code, params)
}
