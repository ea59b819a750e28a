package social

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codequiz-publisher/pkg/config"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry is the read-mostly store for credentials, webhook links, landing
// URLs and browser sessions. Consumers take a Snapshot at dispatch time and
// never read the tables mid-attempt.
type Registry struct {
	db          *gorm.DB
	sessionDir  string
	defaultLink string
}

type RegistryParams struct {
	fx.In
	DB  *gorm.DB
	Cfg *config.Config
}

func NewRegistry(p RegistryParams) *Registry {
	return &Registry{
		db:          p.DB,
		sessionDir:  p.Cfg.Social.SessionDir,
		defaultLink: p.Cfg.Social.DefaultLink,
	}
}

// Snapshot is an immutable view of the registry taken at dispatch time.
type Snapshot struct {
	Credentials map[Platform]SocialMediaCredentials
	Webhooks    []WebhookLink
	Global      map[Platform]GlobalWebhookLink
	Sessions    map[Platform]BrowserSession
	links       []DefaultLink
	fallback    string
}

// Snapshot re-reads every registry table. Called before each caption build
// and backend choice so operator edits take effect without restarts.
func (r *Registry) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Credentials: make(map[Platform]SocialMediaCredentials),
		Global:      make(map[Platform]GlobalWebhookLink),
		Sessions:    make(map[Platform]BrowserSession),
		fallback:    r.defaultLink,
	}

	var creds []SocialMediaCredentials
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&creds).Error; err != nil {
		return nil, err
	}
	for _, c := range creds {
		snap.Credentials[c.Platform] = c
	}

	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&snap.Webhooks).Error; err != nil {
		return nil, err
	}

	var global []GlobalWebhookLink
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&global).Error; err != nil {
		return nil, err
	}
	for _, g := range global {
		snap.Global[g.Platform] = g
	}

	var sessions []BrowserSession
	if err := r.db.WithContext(ctx).Where("valid = ?", true).Find(&sessions).Error; err != nil {
		return nil, err
	}
	for _, s := range sessions {
		snap.Sessions[s.Platform] = s
	}

	if err := r.db.WithContext(ctx).Find(&snap.links).Error; err != nil {
		return nil, err
	}

	return snap, nil
}

// LinkFor resolves the caption landing URL for a (language, topic) pair,
// falling back to the language-wide entry and then the configured default.
func (s *Snapshot) LinkFor(language, topic string) string {
	for _, l := range s.links {
		if l.Language == language && l.Topic == topic {
			return l.URL
		}
	}
	for _, l := range s.links {
		if l.Language == language && l.Topic == "" {
			return l.URL
		}
	}
	return s.fallback
}

// WebhooksFor returns the active webhooks whose type matches the language
// and whose target list includes the platform, plus the platform's global
// fallback link when no specific one matched.
func (s *Snapshot) WebhooksFor(platform Platform, language string) []WebhookLink {
	var out []WebhookLink
	for _, w := range s.Webhooks {
		if !webhookTypeMatches(w.WebhookType, language) {
			continue
		}
		if !targetsPlatform(w.TargetPlatforms, platform) {
			continue
		}
		out = append(out, w)
	}
	if len(out) == 0 {
		if g, ok := s.Global[platform]; ok {
			out = append(out, WebhookLink{
				ID:            g.ID,
				URL:           g.URL,
				WebhookType:   WebhookSocialMedia,
				IsActive:      g.IsActive,
				AwaitCallback: g.AwaitCallback,
			})
		}
	}
	return out
}

func webhookTypeMatches(t WebhookType, language string) bool {
	switch t {
	case WebhookRussianOnly:
		return language == "ru"
	case WebhookEnglishOnly:
		return language == "en"
	case WebhookSocialMedia, WebhookOther:
		return true
	default:
		return false
	}
}

func targetsPlatform(raw []byte, platform Platform) bool {
	if len(raw) == 0 {
		return true
	}
	var targets []string
	if err := json.Unmarshal(raw, &targets); err != nil {
		return false
	}
	for _, t := range targets {
		if Platform(t) == platform {
			return true
		}
	}
	return false
}

// sessionFile is the on-disk format the sessionseed tool writes to the
// session directory: {platform}.json.
type sessionFile struct {
	Platform string          `json:"platform"`
	Account  string          `json:"account"`
	Blob     json.RawMessage `json:"blob"`
}

// WatchSessions follows the session directory and upserts re-seeded
// session blobs into the store, marking them valid. This is how an
// operator recovers an expired session without restarting workers.
func (r *Registry) WatchSessions(ctx context.Context) error {
	if err := os.MkdirAll(r.sessionDir, 0o700); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.sessionDir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if !strings.HasSuffix(event.Name, ".json") {
					continue
				}
				if err := r.IngestSessionFile(ctx, event.Name); err != nil {
					zap.L().Warn("failed to ingest session file",
						zap.String("path", event.Name), zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				zap.L().Warn("session watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// IngestSessionFile upserts one session file into the store; the watcher
// and the sessionseed tool both go through it.
func (r *Registry) IngestSessionFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var sf sessionFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return err
	}
	if sf.Platform == "" {
		sf.Platform = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	now := time.Now()
	session := BrowserSession{
		Platform:  Platform(sf.Platform),
		Account:   sf.Account,
		Blob:      sf.Blob,
		Valid:     true,
		UpdatedAt: now,
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "platform"}, {Name: "account"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob", "valid", "updated_at"}),
	}).Create(&session).Error
	if err != nil {
		return err
	}

	zap.L().Info("browser session re-seeded",
		zap.String("platform", sf.Platform),
		zap.String("account", sf.Account),
	)
	return nil
}

// InvalidateSession flags a session after the browser backend hit a login
// screen; the platform halts until the operator re-seeds it.
func (r *Registry) InvalidateSession(ctx context.Context, platform Platform) error {
	return r.db.WithContext(ctx).
		Model(&BrowserSession{}).
		Where("platform = ?", platform).
		Update("valid", false).Error
}

// MarkCredentialsNeedAttention stops further attempts on the platform
// until an operator intervenes.
func (r *Registry) MarkCredentialsNeedAttention(ctx context.Context, platform Platform) error {
	return r.db.WithContext(ctx).
		Model(&SocialMediaCredentials{}).
		Where("platform = ?", platform).
		Update("needs_attention", true).Error
}

func registerSessionWatcher(lc fx.Lifecycle, r *Registry) {
	watchCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return r.WatchSessions(watchCtx)
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}
