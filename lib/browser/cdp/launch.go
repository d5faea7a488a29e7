package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"heytelecom-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type LaunchOptions struct {
	// ExecPath overrides chromium binary discovery.
	ExecPath string
	// UserDataDir is the persistent profile directory, cookies and local
	// storage survive process restarts through it. When empty a throwaway
	// directory is used.
	UserDataDir string
}

var chromiumNames = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
}

func findChromium() (string, error) {
	for _, name := range chromiumNames {
		path, err := exec.LookPath(name)
		if err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no chromium binary found in PATH (tried %v)", chromiumNames)
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

type versionInfo struct {
	Browser string `json:"Browser"`
}

type targetInfo struct {
	Type                 string `json:"type"`
	WebSocketDebuggerUrl string `json:"webSocketDebuggerUrl"`
}

// Launch starts a headless chromium bound to the given profile directory
// and attaches to its initial page target. The returned session owns the
// subprocess, Close tears it down.
func Launch(ctx context.Context, opts LaunchOptions) (*Session, error) {
	execPath := opts.ExecPath
	if execPath == "" {
		var err error
		execPath, err = findChromium()
		if err != nil {
			return nil, err
		}
	}

	userDataDir := opts.UserDataDir
	if userDataDir == "" {
		userDataDir = filepath.Join(os.TempDir(), "heytelecom-profile-"+uuid.New().String())
	}
	err := os.MkdirAll(userDataDir, 0755)
	if err != nil {
		return nil, err
	}

	port, err := freePort()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(
		execPath,
		"--headless=new",
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-gpu",
		fmt.Sprintf("--remote-debugging-port=%d", port),
		fmt.Sprintf("--user-data-dir=%s", userDataDir),
		"about:blank",
	)
	err = cmd.Start()
	if err != nil {
		return nil, err
	}

	kill := func() {
		cmd.Process.Kill()
		cmd.Wait()
	}

	client := resty.New()
	client.SetBaseURL(fmt.Sprintf("http://127.0.0.1:%d", port))
	client.SetTimeout(time.Second * 5)
	telemetry.InstrumentResty(client, "browser/cdp/bootstrap")

	wsUrl, err := waitForDevtools(ctx, client)
	if err != nil {
		kill()
		return nil, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsUrl, nil)
	if err != nil {
		kill()
		return nil, fmt.Errorf("failed to attach to devtools: %w", err)
	}

	session := &Session{
		conn:    newConn(ws),
		cleanup: kill,
	}
	err = session.conn.call(ctx, "Page.enable", nil, nil)
	if err != nil {
		session.Close()
		return nil, err
	}

	slog.Debug("chromium launched", "port", port, "profile", userDataDir)
	return session, nil
}

func waitForDevtools(ctx context.Context, client *resty.Client) (string, error) {
	deadline := time.Now().Add(time.Second * 30)
	for {
		var version versionInfo
		res, err := client.R().
			SetContext(ctx).
			SetResult(&version).
			Get("/json/version")
		if err == nil && res.StatusCode() == 200 {
			break
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("timed out waiting for devtools endpoint")
		}
		select {
		case <-time.After(time.Millisecond * 200):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	var targets []targetInfo
	_, err := client.R().
		SetContext(ctx).
		SetResult(&targets).
		Get("/json/list")
	if err != nil {
		return "", err
	}
	for _, t := range targets {
		if t.Type == "page" && t.WebSocketDebuggerUrl != "" {
			return t.WebSocketDebuggerUrl, nil
		}
	}
	return "", fmt.Errorf("no page target exposed by devtools")
}
