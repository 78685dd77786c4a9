//go:build e2e

package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thesyncim/tvremote/cmd/tvremote-app/server"
	"github.com/thesyncim/tvremote/pkg/logging"
	"github.com/thesyncim/tvremote/pkg/tvremote"
	"github.com/thesyncim/tvremote/pkg/tvremote/pages"
	"github.com/thesyncim/tvremote/pkg/tvremote/testutil"
)

const (
	testTimeout  = 30 * time.Second
	pollInterval = 100 * time.Millisecond
)

// scenario is one fixture app plus a TV and a Remote browser.
type scenario struct {
	srv     *server.Server
	baseURL string

	tvBrowser     *testutil.BrowserClient
	remoteBrowser *testutil.BrowserClient

	tv      *pages.TV
	remote  *pages.Remote
	session *tvremote.Session
}

// startApp starts the fixture app on a random port and stops it on cleanup.
func startApp(t *testing.T) *server.Server {
	t.Helper()

	cfg := server.DefaultConfig()
	cfg.Logger = logging.NewConsole(testing.Verbose(), "app")
	srv, err := server.NewServer(cfg)
	require.NoError(t, err, "failed to create server")

	addr, err := srv.Start()
	require.NoError(t, err, "failed to start server")
	t.Logf("Server started on %s", addr)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("server shutdown error: %v", err)
		}
	})
	return srv
}

// newBrowser launches a browser and closes it on cleanup.
func newBrowser(t *testing.T, headless bool) *testutil.BrowserClient {
	t.Helper()

	cfg := testutil.DefaultBrowserConfig()
	cfg.Headless = headless
	client, err := testutil.NewBrowserClient(cfg)
	require.NoError(t, err, "failed to create browser")

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("browser close error: %v", err)
		}
	})
	return client
}

// newScenario wires a Session against a fresh app. The config is read from
// TVREMOTE_* so pairing codes can be supplied in CI; mutate applies
// per-test overrides.
func newScenario(t *testing.T, mutate func(*tvremote.Config)) *scenario {
	t.Helper()

	cfg, err := tvremote.LoadConfigFromEnv()
	require.NoError(t, err)
	if mutate != nil {
		mutate(&cfg)
	}

	srv := startApp(t)
	cfg.AppURL = srv.BaseURL()

	sc := &scenario{
		srv:           srv,
		baseURL:       cfg.AppURL,
		tvBrowser:     newBrowser(t, cfg.Headless),
		remoteBrowser: newBrowser(t, cfg.Headless),
	}
	sc.tv = pages.NewTV(sc.tvBrowser, cfg.AppURL)
	sc.remote = pages.NewRemote(sc.remoteBrowser, cfg.AppURL)

	sc.session, err = tvremote.NewSession(sc.tv, sc.remote, cfg,
		tvremote.WithLogger(logging.NewConsole(testing.Verbose(), "session")))
	require.NoError(t, err)

	t.Cleanup(func() {
		sc.session.ResetConnection(context.Background())
	})
	return sc
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	t.Cleanup(cancel)
	return ctx
}
