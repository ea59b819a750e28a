package social

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codequiz-publisher/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestWebhookBackendSendsEnvelope(t *testing.T) {
	var got Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := newWebhookBackend([]WebhookLink{{ID: 3, URL: srv.URL}}, time.Second)
	result, err := b.Publish(context.Background(), PublishRequest{
		TaskID:   42,
		Platform: Instagram,
		Language: "en",
		Topic:    "Python",
		Caption:  "What prints? 2 - 3 = ?",
		ImageURL: "https://cdn.example.com/tasks/42/question.png",
		VideoURL: "https://cdn.example.com/tasks/42/question.mp4",
		Link:     "https://t.me/example_bot",
	})
	require.NoError(t, err)
	require.Equal(t, "webhook:3:42", result.PostID)
	require.False(t, result.Pending)

	require.Equal(t, int64(42), got.TaskID)
	require.Equal(t, []string{"instagram"}, got.TargetPlatforms)
	require.NotNil(t, got.VideoURL)
	// the caption crosses the wire unescaped
	require.Equal(t, "What prints? 2 - 3 = ?", got.Caption)
}

func TestWebhookBackendOmitsMissingVideo(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := newWebhookBackend([]WebhookLink{{ID: 1, URL: srv.URL}}, time.Second)
	_, err := b.Publish(context.Background(), PublishRequest{TaskID: 1, Platform: Pinterest})
	require.NoError(t, err)
	require.Nil(t, raw["video_url"])
}

func TestWebhookBackendErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		header http.Header
		kind   errutil.Kind
	}{
		{http.StatusTooManyRequests, http.Header{"Retry-After": {"120"}}, errutil.KindRateLimit},
		{http.StatusUnauthorized, nil, errutil.KindAuthExpired},
		{http.StatusForbidden, nil, errutil.KindAuthExpired},
		{http.StatusBadGateway, nil, errutil.KindTransientNetwork},
		{http.StatusBadRequest, nil, errutil.KindInvalidInput},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, vs := range tc.header {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			w.WriteHeader(tc.status)
		}))

		b := newWebhookBackend([]WebhookLink{{URL: srv.URL}}, time.Second)
		_, err := b.Publish(context.Background(), PublishRequest{TaskID: 1})
		require.Error(t, err, "status %d", tc.status)
		require.Equal(t, tc.kind, errutil.KindOf(err), "status %d", tc.status)

		if tc.status == http.StatusTooManyRequests {
			require.Equal(t, 2*time.Minute, errutil.RetryAfterHint(err))
		}
		srv.Close()
	}
}

func TestAPIBackendPinterest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v5/pins", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		media := payload["media_source"].(map[string]any)
		require.Equal(t, "image_url", media["source_type"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"8123456789"}`))
	}))
	defer srv.Close()

	creds := SocialMediaCredentials{
		Platform: Pinterest, AccessToken: strPtr("secret"),
		APIBaseURL: srv.URL, IsActive: true,
	}
	b, err := newAPIBackend(Pinterest, creds, time.Second)
	require.NoError(t, err)

	result, err := b.Publish(context.Background(), PublishRequest{
		TaskID:   1,
		Topic:    "Python",
		Caption:  "caption",
		ImageURL: "https://cdn.example.com/q.png",
		Link:     "https://t.me/example_bot",
	})
	require.NoError(t, err)
	require.Equal(t, "8123456789", result.PostID)
	require.Equal(t, "https://www.pinterest.com/pin/8123456789/", result.PostURL)
}

func TestAPIBackendTwitterNestedID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/tweets", r.URL.Path)
		w.Write([]byte(`{"data":{"id":"1700000000000000000"}}`))
	}))
	defer srv.Close()

	creds := SocialMediaCredentials{
		Platform: Twitter, Username: "quizbot",
		AccessToken: strPtr("secret"), APIBaseURL: srv.URL, IsActive: true,
	}
	b, err := newAPIBackend(Twitter, creds, time.Second)
	require.NoError(t, err)

	result, err := b.Publish(context.Background(), PublishRequest{Caption: "hi", Link: "https://t.me/x"})
	require.NoError(t, err)
	require.Equal(t, "1700000000000000000", result.PostID)
	require.Equal(t, "https://x.com/quizbot/status/1700000000000000000", result.PostURL)
}

func TestAPIBackendFacebookFormEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/photos", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "secret", r.Form.Get("access_token"))
		require.Equal(t, "https://cdn.example.com/q.png", r.Form.Get("url"))
		w.Write([]byte(`{"id":9001}`))
	}))
	defer srv.Close()

	creds := SocialMediaCredentials{
		Platform: Facebook, AccessToken: strPtr("secret"),
		APIBaseURL: srv.URL, IsActive: true,
	}
	b, err := newAPIBackend(Facebook, creds, time.Second)
	require.NoError(t, err)

	// numeric id in the response body must round-trip as a string
	result, err := b.Publish(context.Background(), PublishRequest{
		ImageURL: "https://cdn.example.com/q.png", Caption: "c",
	})
	require.NoError(t, err)
	require.Equal(t, "9001", result.PostID)
}

func TestAPIBackendMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	creds := SocialMediaCredentials{
		Platform: Pinterest, AccessToken: strPtr("secret"),
		APIBaseURL: srv.URL, IsActive: true,
	}
	b, err := newAPIBackend(Pinterest, creds, time.Second)
	require.NoError(t, err)

	_, err = b.Publish(context.Background(), PublishRequest{})
	require.Error(t, err)
	require.Equal(t, errutil.KindInvalidInput, errutil.KindOf(err))
}

func TestAPISupportedMatchesDispatchTable(t *testing.T) {
	for _, p := range AllPlatforms {
		for _, m := range MethodOrderFor(p) {
			if m == MethodAPI {
				require.True(t, APISupported(p), "platform %s dispatches to API without a descriptor", p)
			}
			if m == MethodBrowser {
				require.True(t, BrowserSupported(p), "platform %s dispatches to browser without a flow", p)
			}
		}
	}
}
