//go:build e2e

package e2e

import (
	"os"
	"os/exec"
	"runtime"
	"testing"
)

// keepBrowsersEnv disables the orphan sweep, e.g. on a workstation where
// a personal Chrome is running.
const keepBrowsersEnv = "TVREMOTE_KEEP_BROWSERS"

func TestMain(m *testing.M) {
	code := m.Run()

	// Each scenario closes its own two browsers; this catches the ones a
	// panic or os.Exit left behind.
	if os.Getenv(keepBrowsersEnv) == "" {
		sweepOrphanedBrowsers()
	}

	os.Exit(code)
}

// sweepOrphanedBrowsers kills leftover Chrome processes. Errors are ignored:
// the kill tools exit non-zero when nothing matched.
func sweepOrphanedBrowsers() {
	switch runtime.GOOS {
	case "darwin", "linux":
		// Rod downloads chromium; CI images may ship chrome.
		_ = exec.Command("pkill", "-f", "chromium|chrome").Run()
	case "windows":
		for _, image := range []string{"chrome.exe", "chromium.exe"} {
			_ = exec.Command("taskkill", "/F", "/IM", image).Run()
		}
	}
}
