package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"codequiz-publisher/pkg/errutil"
)

// Envelope is the outbound JSON contract with third-party automations.
// The caption is sent raw; escaping is the receiver's concern.
type Envelope struct {
	TaskID          int64    `json:"task_id"`
	Language        string   `json:"language"`
	Topic           string   `json:"topic"`
	ImageURL        string   `json:"image_url"`
	VideoURL        *string  `json:"video_url"`
	Link            string   `json:"link"`
	TargetPlatforms []string `json:"target_platforms"`
	Caption         string   `json:"caption"`
}

type webhookBackend struct {
	links  []WebhookLink
	client *http.Client
}

func newWebhookBackend(links []WebhookLink, timeout time.Duration) *webhookBackend {
	return &webhookBackend{
		links:  links,
		client: &http.Client{Timeout: timeout},
	}
}

func (b *webhookBackend) Kind() Method { return MethodWebhook }

// Publish posts the envelope to every matching link. The first non-2xx
// classifies the attempt; a retried attempt re-posts to every link, so
// receivers see the envelope at least once and dedupe on task_id. The
// result is pending when any link awaits an inbound confirmation callback.
func (b *webhookBackend) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	env := Envelope{
		TaskID:          req.TaskID,
		Language:        req.Language,
		Topic:           req.Topic,
		ImageURL:        req.ImageURL,
		Link:            req.Link,
		TargetPlatforms: []string{string(req.Platform)},
		Caption:         req.Caption,
	}
	if req.VideoURL != "" {
		env.VideoURL = &req.VideoURL
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, errutil.Internal("marshal webhook envelope", errutil.WithErr(err))
	}

	pending := false
	for _, link := range b.links {
		if err := b.post(ctx, link, body); err != nil {
			return nil, err
		}
		pending = pending || link.AwaitCallback
	}

	return &PublishResult{
		PostID:  fmt.Sprintf("webhook:%d:%d", b.links[0].ID, req.TaskID),
		Pending: pending,
	}, nil
}

func (b *webhookBackend) post(ctx context.Context, link WebhookLink, body []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, link.URL, bytes.NewReader(body))
	if err != nil {
		return errutil.InvalidInput("build webhook request", errutil.WithErr(err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return errutil.TransientNetwork("webhook request failed", errutil.WithErr(err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return classifyHTTPStatus(resp, "webhook")
}

// classifyHTTPStatus maps a non-2xx response to a typed error, honoring
// Retry-After on rate limits.
func classifyHTTPStatus(resp *http.Response, source string) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return errutil.RateLimit(
			fmt.Sprintf("%s rate limited", source),
			errutil.WithRetryAfter(retryAfterHeader(resp)),
		)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errutil.AuthExpired(fmt.Sprintf("%s auth rejected (%d)", source, resp.StatusCode))
	case resp.StatusCode >= 500:
		return errutil.TransientNetwork(fmt.Sprintf("%s server error (%d)", source, resp.StatusCode))
	default:
		return errutil.InvalidInput(fmt.Sprintf("%s rejected request (%d)", source, resp.StatusCode))
	}
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	// Twitter-style epoch reset header
	if v := resp.Header.Get("x-rate-limit-reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}
