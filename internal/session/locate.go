package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrBrowserNotFound means no installed browser executable could be
// resolved from the platform candidate list.
var ErrBrowserNotFound = errors.New("no Chrome or Chromium-based browser found")

// executableCandidates lists install locations tried in order, per platform.
// Update these when a platform moves its default install path.
func executableCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
			`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
		}
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/usr/bin/microsoft-edge",
		}
	}
}

// FindExecutable resolves the browser executable: the override wins when it
// exists on disk, otherwise candidates are tried in order.
func FindExecutable(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err == nil {
			return override, nil
		}
		return "", fmt.Errorf("%w: configured path %q does not exist", ErrBrowserNotFound, override)
	}
	for _, p := range executableCandidates() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrBrowserNotFound
}

// LaunchOptions configure a background browser launch.
type LaunchOptions struct {
	ExecPath   string // empty: auto-detect
	ProfileDir string
	// SeedProfileDir is copied into ProfileDir when ProfileDir is created
	// fresh, carrying over a logged-in profile.
	SeedProfileDir string
	Port           int
	Headless       bool
}

// Launch starts a browser process bound to the remote-debugging port and
// returns immediately; the process outlives the calling operation.
func Launch(opts LaunchOptions) (*exec.Cmd, error) {
	path, err := FindExecutable(opts.ExecPath)
	if err != nil {
		return nil, err
	}

	if opts.ProfileDir != "" {
		if err := ensureProfileDir(opts.ProfileDir, opts.SeedProfileDir); err != nil {
			return nil, fmt.Errorf("prepare profile dir: %w", err)
		}
	}

	cmd := exec.Command(path, launchArgs(opts.Port, opts.ProfileDir, opts.Headless)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return cmd, nil
}

// ensureProfileDir creates dir if missing, seeding it from seed when one is
// configured and dir did not exist before.
func ensureProfileDir(dir, seed string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if seed == "" {
		return nil
	}
	if _, err := os.Stat(seed); err != nil {
		return nil // no prior profile to carry over
	}
	return copyTree(seed, dir)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0700)
		}
		// Profile dirs contain sockets and locks; skip anything irregular.
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
