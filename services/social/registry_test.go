package social

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codequiz-publisher/services/testutil"

	"github.com/stretchr/testify/require"
)

func TestSnapshotLinkResolution(t *testing.T) {
	db := testutil.NewTestDB(t, Models()...)
	r := &Registry{db: db, defaultLink: "https://t.me/example_bot"}
	ctx := context.Background()

	require.NoError(t, db.Create(&DefaultLink{
		Language: "en", Topic: "Python", URL: "https://t.me/python_bot",
	}).Error)
	require.NoError(t, db.Create(&DefaultLink{
		Language: "en", Topic: "", URL: "https://t.me/en_bot",
	}).Error)

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)

	require.Equal(t, "https://t.me/python_bot", snap.LinkFor("en", "Python"))
	require.Equal(t, "https://t.me/en_bot", snap.LinkFor("en", "Go"))
	require.Equal(t, "https://t.me/example_bot", snap.LinkFor("ru", "Python"))
}

func TestWebhooksForFiltersByLanguageAndPlatform(t *testing.T) {
	db := testutil.NewTestDB(t, Models()...)
	r := &Registry{db: db}
	ctx := context.Background()

	targets, _ := json.Marshal([]string{"instagram", "tiktok"})
	require.NoError(t, db.Create(&WebhookLink{
		URL: "https://hooks.example.com/a", WebhookType: WebhookSocialMedia,
		TargetPlatforms: targets, IsActive: true,
	}).Error)
	require.NoError(t, db.Create(&WebhookLink{
		URL: "https://hooks.example.com/ru", WebhookType: WebhookRussianOnly, IsActive: true,
	}).Error)
	require.NoError(t, db.Create(&WebhookLink{
		URL: "https://hooks.example.com/off", WebhookType: WebhookSocialMedia, IsActive: false,
	}).Error)

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)

	// targeted webhook matches only its platforms
	hooks := snap.WebhooksFor(Instagram, "en")
	require.Len(t, hooks, 1)
	require.Equal(t, "https://hooks.example.com/a", hooks[0].URL)

	// russian_only joins in for ru tasks; empty target list means all platforms
	hooks = snap.WebhooksFor(Instagram, "ru")
	require.Len(t, hooks, 2)

	// platform outside the target list gets nothing (and no global fallback)
	require.Empty(t, snap.WebhooksFor(Twitter, "en"))
}

func TestWebhooksForGlobalFallback(t *testing.T) {
	db := testutil.NewTestDB(t, Models()...)
	r := &Registry{db: db}

	require.NoError(t, db.Create(&GlobalWebhookLink{
		Platform: Twitter, URL: "https://hooks.example.com/global", IsActive: true,
	}).Error)

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)

	hooks := snap.WebhooksFor(Twitter, "en")
	require.Len(t, hooks, 1)
	require.Equal(t, "https://hooks.example.com/global", hooks[0].URL)
}

func TestSnapshotSkipsInvalidSessionsAndInactiveCreds(t *testing.T) {
	db := testutil.NewTestDB(t, Models()...)
	r := &Registry{db: db}

	require.NoError(t, db.Create(&BrowserSession{
		Platform: Instagram, Account: "a", Valid: true, Blob: []byte(`{}`),
	}).Error)
	require.NoError(t, db.Create(&BrowserSession{
		Platform: TikTok, Account: "b", Valid: false, Blob: []byte(`{}`),
	}).Error)
	tok := "x"
	require.NoError(t, db.Create(&SocialMediaCredentials{
		Platform: Pinterest, AccessToken: &tok, IsActive: false,
	}).Error)

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)

	require.Contains(t, snap.Sessions, Instagram)
	require.NotContains(t, snap.Sessions, TikTok)
	require.NotContains(t, snap.Credentials, Pinterest)
}

func TestIngestSessionFileUpserts(t *testing.T) {
	db := testutil.NewTestDB(t, Models()...)
	dir := t.TempDir()
	r := &Registry{db: db, sessionDir: dir}
	ctx := context.Background()

	// start from an invalidated session
	require.NoError(t, db.Create(&BrowserSession{
		Platform: Instagram, Account: "quizbot", Valid: false, Blob: []byte(`{"old":1}`),
	}).Error)

	blob := sessionFile{
		Platform: "instagram",
		Account:  "quizbot",
		Blob:     json.RawMessage(`{"cookies":[{"name":"sessionid","value":"v","domain":".instagram.com","path":"/"}]}`),
	}
	raw, _ := json.Marshal(blob)
	path := filepath.Join(dir, "instagram.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	require.NoError(t, r.IngestSessionFile(ctx, path))

	var session BrowserSession
	require.NoError(t, db.Where("platform = ? AND account = ?", Instagram, "quizbot").
		First(&session).Error)
	require.True(t, session.Valid)
	require.Contains(t, string(session.Blob), "sessionid")

	var count int64
	db.Model(&BrowserSession{}).Count(&count)
	require.Equal(t, int64(1), count)
}

func TestInvalidateSession(t *testing.T) {
	db := testutil.NewTestDB(t, Models()...)
	r := &Registry{db: db}
	ctx := context.Background()

	require.NoError(t, db.Create(&BrowserSession{
		Platform: TikTok, Account: "a", Valid: true, Blob: []byte(`{}`),
	}).Error)
	require.NoError(t, r.InvalidateSession(ctx, TikTok))

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	require.NotContains(t, snap.Sessions, TikTok)
}

func TestCredentialsTokenValid(t *testing.T) {
	now := time.Now()
	tok := "t"
	expired := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name  string
		creds SocialMediaCredentials
		want  bool
	}{
		{"valid", SocialMediaCredentials{IsActive: true, AccessToken: &tok, TokenExpiresAt: &future}, true},
		{"no expiry", SocialMediaCredentials{IsActive: true, AccessToken: &tok}, true},
		{"expired", SocialMediaCredentials{IsActive: true, AccessToken: &tok, TokenExpiresAt: &expired}, false},
		{"inactive", SocialMediaCredentials{IsActive: false, AccessToken: &tok}, false},
		{"needs attention", SocialMediaCredentials{IsActive: true, NeedsAttention: true, AccessToken: &tok}, false},
		{"no token", SocialMediaCredentials{IsActive: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.creds.TokenValid(now))
		})
	}
}
