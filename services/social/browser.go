package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"codequiz-publisher/pkg/errutil"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sessionBlob is the serialized browser state the sessionseed tool
// produces. Workers treat it as read-only; they never log in.
type sessionBlob struct {
	Cookies []sessionCookie   `json:"cookies"`
	Storage map[string]string `json:"local_storage,omitempty"`
	Origin  string            `json:"origin,omitempty"`
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

type browserBackend struct {
	platform    Platform
	session     BrowserSession
	headless    bool
	timeout     time.Duration
	httpTimeout time.Duration
	skipHint    bool
	workDir     string
	supervisor  *BrowserSupervisor
}

func (b *browserBackend) Kind() Method { return MethodBrowser }

// Publish drives the platform's web upload flow inside a headless browser
// seeded with the stored session. The browser is closed on every exit path.
func (b *browserBackend) Publish(ctx context.Context, req PublishRequest) (result *PublishResult, err error) {
	flow, ok := browserFlows[b.platform]
	if !ok {
		return nil, errutil.InvalidInput(fmt.Sprintf("no browser flow for %s", b.platform))
	}

	var blob sessionBlob
	if err := json.Unmarshal(b.session.Blob, &blob); err != nil {
		return nil, errutil.SessionExpired("session blob unreadable", errutil.WithErr(err))
	}
	if len(blob.Cookies) == 0 {
		return nil, errutil.SessionExpired("session missing")
	}

	mediaPath, err := b.fetchMedia(ctx, flow, req)
	if err != nil {
		return nil, err
	}
	defer os.Remove(mediaPath)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	runCtx, cancelRun := context.WithTimeout(browserCtx, b.timeout)

	handle := b.supervisor.register(cancelBrowser)
	defer func() {
		if r := recover(); r != nil {
			err = errutil.Internal(fmt.Sprintf("browser flow panicked: %v", r))
		}
		cancelRun()
		cancelBrowser()
		cancelAlloc()
		b.supervisor.unregister(handle)
	}()

	if err := chromedp.Run(runCtx, restoreCookies(blob)); err != nil {
		return nil, errutil.SessionExpired("restore session", errutil.WithErr(err))
	}

	if err := chromedp.Run(runCtx, chromedp.Navigate(flow.home)); err != nil {
		return nil, errutil.TransientNetwork("navigate home", errutil.WithErr(err))
	}

	if err := b.verifyAuthenticated(runCtx, flow); err != nil {
		return nil, err
	}

	if err := b.runSteps(runCtx, flow, req, mediaPath); err != nil {
		return nil, err
	}

	if msg := scrapeErrorBanner(runCtx, flow); msg != "" {
		return nil, errutil.InvalidInput("platform reported: " + msg)
	}

	var location string
	_ = chromedp.Run(runCtx, chromedp.Location(&location))

	return &PublishResult{
		PostID:  fmt.Sprintf("%s:%d", b.platform, req.TaskID),
		PostURL: location,
	}, nil
}

// fetchMedia downloads the upload asset next to the worker: browser file
// choosers need a local path, not a URL.
func (b *browserBackend) fetchMedia(ctx context.Context, flow browserFlow, req PublishRequest) (string, error) {
	src := req.ImageURL
	ext := ".png"
	if flow.wantsVideo {
		if req.VideoURL == "" {
			return "", errutil.InvalidInput(fmt.Sprintf("%s needs a video but the task has none", b.platform))
		}
		src = req.VideoURL
		ext = ".mp4"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", errutil.InvalidInput("build media fetch", errutil.WithErr(err))
	}
	client := &http.Client{Timeout: b.httpTimeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", errutil.TransientNetwork("fetch media", errutil.WithErr(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errutil.TransientNetwork(fmt.Sprintf("fetch media: status %d", resp.StatusCode))
	}

	f, err := os.CreateTemp(b.workDir, "upload-*"+ext)
	if err != nil {
		return "", errutil.Internal("create media temp file", errutil.WithErr(err))
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(f.Name())
		return "", errutil.TransientNetwork("download media", errutil.WithErr(err))
	}
	return f.Name(), nil
}

func restoreCookies(blob sessionBlob) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range blob.Cookies {
			param := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				param = param.WithExpires(&expires)
			}
			if err := param.Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// verifyAuthenticated distinguishes a live session from a login redirect.
// Hitting the auth screen is fatal for the attempt: the session expired.
func (b *browserBackend) verifyAuthenticated(ctx context.Context, flow browserFlow) error {
	var location string
	if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
		return errutil.TransientNetwork("read location", errutil.WithErr(err))
	}
	if flow.loginMarker != "" && strings.Contains(location, flow.loginMarker) {
		return errutil.SessionExpired("redirected to login screen")
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := chromedp.Run(checkCtx, chromedp.WaitVisible(flow.loggedInSelector, chromedp.ByQuery)); err != nil {
		return errutil.SessionExpired("logged-in marker not found", errutil.WithErr(err))
	}
	return nil
}

// runSteps walks the flow. Skippable steps get a short wait and are passed
// over on timeout when the filechooser path already landed on the caption
// screen; required steps keep the full per-step wait.
func (b *browserBackend) runSteps(ctx context.Context, flow browserFlow, req PublishRequest, mediaPath string) error {
	for _, step := range flow.steps {
		wait := stepWait
		if step.skippable && b.skipHint {
			wait = skippableStepWait
		}
		stepCtx, cancel := context.WithTimeout(ctx, wait)
		err := chromedp.Run(stepCtx, step.action(req, mediaPath))
		cancel()

		if err == nil {
			continue
		}
		if step.skippable {
			zap.L().Debug("skippable browser step passed over",
				zap.String("platform", string(b.platform)),
				zap.String("step", step.name),
			)
			continue
		}
		if strings.Contains(err.Error(), "context deadline exceeded") {
			return errutil.TransientNetwork(
				fmt.Sprintf("selector not found within wait: %s", step.name),
				errutil.WithErr(err),
			)
		}
		return errutil.TransientNetwork("browser step failed: "+step.name, errutil.WithErr(err))
	}
	return nil
}

func scrapeErrorBanner(ctx context.Context, flow browserFlow) string {
	if flow.errorBanner == "" {
		return ""
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var text string
	if err := chromedp.Run(checkCtx, chromedp.Text(flow.errorBanner, &text, chromedp.ByQuery)); err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// BrowserSupervisor tracks live browser contexts and tears down the ones
// that outlive the orphan threshold, e.g. after a wedged CDP connection.
type BrowserSupervisor struct {
	mu      sync.Mutex
	entries map[string]supervisedBrowser
}

type supervisedBrowser struct {
	cancel  context.CancelFunc
	started time.Time
}

func NewBrowserSupervisor() *BrowserSupervisor {
	return &BrowserSupervisor{entries: make(map[string]supervisedBrowser)}
}

func (s *BrowserSupervisor) register(cancel context.CancelFunc) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.entries[id] = supervisedBrowser{cancel: cancel, started: time.Now()}
	s.mu.Unlock()
	return id
}

func (s *BrowserSupervisor) unregister(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Reap cancels browsers older than threshold and returns how many it tore
// down.
func (s *BrowserSupervisor) Reap(threshold time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	reaped := 0
	for id, e := range s.entries {
		if time.Since(e.started) > threshold {
			e.cancel()
			delete(s.entries, id)
			reaped++
		}
	}
	if reaped > 0 {
		zap.L().Warn("reaped orphaned browser processes", zap.Int("count", reaped))
	}
	return reaped
}

const (
	stepWait          = 60 * time.Second
	skippableStepWait = 5 * time.Second
)
