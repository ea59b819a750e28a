package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codequiz-publisher/pkg/config"
	"codequiz-publisher/pkg/db"
	"codequiz-publisher/services/social"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// sessionseed opens a visible browser on a platform's login page, waits for
// the operator to sign in by hand and saves the resulting cookies as a
// session file. Running workers pick the file up through the session
// watcher; the direct upsert covers the cold-start case.
func main() {
	log := zap.Must(zap.NewDevelopment())
	zap.ReplaceGlobals(log)

	platform := flag.String("platform", "", "platform to seed (e.g. instagram, tiktok)")
	account := flag.String("account", "default", "account label")
	loginURL := flag.String("url", "", "login page to open")
	timeout := flag.Duration("timeout", 10*time.Minute, "how long to wait for the login")
	flag.Parse()

	if *platform == "" || *loginURL == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.LoadConfig()

	cookies, err := captureLogin(*loginURL, *timeout)
	if err != nil {
		zap.L().Error("login capture failed", zap.Error(err))
		os.Exit(1)
	}
	if len(cookies) == 0 {
		zap.L().Error("no cookies captured; was the login completed?")
		os.Exit(1)
	}

	path, err := writeSessionFile(cfg.Social.SessionDir, *platform, *account, cookies)
	if err != nil {
		zap.L().Error("failed to write session file", zap.Error(err))
		os.Exit(1)
	}
	fmt.Printf("session written to %s (%d cookies)\n", path, len(cookies))

	gdb := db.New(cfg, db.Dialect(cfg))
	registry := social.NewRegistry(social.RegistryParams{DB: gdb, Cfg: cfg})
	if err := registry.IngestSessionFile(context.Background(), path); err != nil {
		zap.L().Error("failed to store session in database", zap.Error(err))
		os.Exit(1)
	}
	fmt.Println("session stored; workers will use it on the next attempt")
}

func captureLogin(loginURL string, timeout time.Duration) ([]*network.Cookie, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancelRun := context.WithTimeout(browserCtx, timeout)
	defer cancelRun()

	if err := chromedp.Run(runCtx, chromedp.Navigate(loginURL)); err != nil {
		return nil, fmt.Errorf("open login page: %w", err)
	}

	fmt.Println("log in using the opened browser, then press Enter here")
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		return nil, err
	}

	var cookies []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return cookies, nil
}

// The file layout matches what the session watcher ingests.
type sessionFile struct {
	Platform string      `json:"platform"`
	Account  string      `json:"account"`
	Blob     sessionBlob `json:"blob"`
}

type sessionBlob struct {
	Cookies []sessionCookie `json:"cookies"`
}

type sessionCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
}

func writeSessionFile(dir, platform, account string, cookies []*network.Cookie) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}

	blob := sessionBlob{}
	for _, c := range cookies {
		blob.Cookies = append(blob.Cookies, sessionCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}

	raw, err := json.MarshalIndent(sessionFile{
		Platform: platform,
		Account:  account,
		Blob:     blob,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, platform+".json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
