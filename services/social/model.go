package social

import (
	"time"

	"gorm.io/datatypes"
)

// Platform identifies one publication target.
type Platform string

const (
	Pinterest         Platform = "pinterest"
	YouTubeShorts     Platform = "youtube_shorts"
	YandexDzen        Platform = "yandex_dzen"
	Instagram         Platform = "instagram"
	InstagramReels    Platform = "instagram_reels"
	InstagramStories  Platform = "instagram_stories"
	Facebook          Platform = "facebook"
	FacebookReels     Platform = "facebook_reels"
	FacebookStories   Platform = "facebook_stories"
	TikTok            Platform = "tiktok"
	Twitter           Platform = "twitter"
)

// AllPlatforms lists every dispatchable platform in a stable order.
var AllPlatforms = []Platform{
	Pinterest, YouTubeShorts, YandexDzen,
	Instagram, InstagramReels, InstagramStories,
	Facebook, FacebookReels, FacebookStories,
	TikTok, Twitter,
}

// Method is how a platform is driven.
type Method string

const (
	MethodAPI     Method = "api"
	MethodWebhook Method = "webhook"
	MethodBrowser Method = "browser"
)

// Status is the SocialMediaPost state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
)

// SocialMediaPost is the durable attempt record for publishing one task to
// one platform. (task_id, platform) is unique: retries increment
// retry_count on the same row, never create a second one.
type SocialMediaPost struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement"`
	TaskID       int64      `gorm:"column:task_id;not null;uniqueIndex:idx_task_platform"`
	Platform     Platform   `gorm:"column:platform;not null;uniqueIndex:idx_task_platform"`
	Method       Method     `gorm:"column:method"`
	Status       Status     `gorm:"column:status;not null;default:pending;index"`
	PostID       *string    `gorm:"column:post_id"`
	PostURL      *string    `gorm:"column:post_url"`
	RetryCount   int        `gorm:"column:retry_count;not null;default:0"`
	ErrorMessage *string    `gorm:"column:error_message"`
	ClaimToken   *string    `gorm:"column:claim_token"`
	ClaimedAt    *time.Time `gorm:"column:claimed_at;index"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (SocialMediaPost) TableName() string { return "social_media_posts" }

// SocialMediaCredentials is the per-platform credential set consulted when
// choosing a backend. needs_attention is set on auth failures and halts the
// platform until an operator acts.
type SocialMediaCredentials struct {
	ID             int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Platform       Platform   `gorm:"column:platform;not null;uniqueIndex"`
	Username       string     `gorm:"column:username"`
	AccessToken    *string    `gorm:"column:access_token"`
	RefreshToken   *string    `gorm:"column:refresh_token"`
	TokenExpiresAt *time.Time `gorm:"column:token_expires_at"`
	APIBaseURL     string     `gorm:"column:api_base_url"`
	IsActive       bool       `gorm:"column:is_active;default:true"`
	NeedsAttention bool       `gorm:"column:needs_attention;default:false"`
	BrowserType    string     `gorm:"column:browser_type;default:chromium"`
	HeadlessMode   bool       `gorm:"column:headless_mode;default:true"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (SocialMediaCredentials) TableName() string { return "social_media_credentials" }

// TokenValid reports whether the credentials can drive an API backend now.
func (c *SocialMediaCredentials) TokenValid(now time.Time) bool {
	if !c.IsActive || c.NeedsAttention {
		return false
	}
	if c.AccessToken == nil || *c.AccessToken == "" {
		return false
	}
	if c.TokenExpiresAt != nil && c.TokenExpiresAt.Before(now) {
		return false
	}
	return true
}

// WebhookType filters which tasks a webhook receives.
type WebhookType string

const (
	WebhookSocialMedia WebhookType = "social_media"
	WebhookRussianOnly WebhookType = "russian_only"
	WebhookEnglishOnly WebhookType = "english_only"
	WebhookOther       WebhookType = "other"
)

// WebhookLink is a third-party automation endpoint. A task fans out to
// every active link whose type matches the task's language and whose
// target_platforms contains the platform.
type WebhookLink struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement"`
	URL             string         `gorm:"column:url;not null"`
	WebhookType     WebhookType    `gorm:"column:webhook_type;not null;default:social_media"`
	TargetPlatforms datatypes.JSON `gorm:"column:target_platforms;type:text"`
	IsActive        bool           `gorm:"column:is_active;default:true"`
	AwaitCallback   bool           `gorm:"column:await_callback;default:false"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (WebhookLink) TableName() string { return "webhooks" }

// GlobalWebhookLink is the per-platform fallback endpoint used when no
// specific webhook matches.
type GlobalWebhookLink struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Platform      Platform  `gorm:"column:platform;not null;uniqueIndex"`
	URL           string    `gorm:"column:url;not null"`
	IsActive      bool      `gorm:"column:is_active;default:true"`
	AwaitCallback bool      `gorm:"column:await_callback;default:false"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (GlobalWebhookLink) TableName() string { return "global_webhook_links" }

// DefaultLink is the landing URL placed in captions for a
// (language, topic) pair.
type DefaultLink struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Language string `gorm:"column:language;not null;uniqueIndex:idx_lang_topic"`
	Topic    string `gorm:"column:topic;not null;uniqueIndex:idx_lang_topic"`
	URL      string `gorm:"column:url;not null"`
}

func (DefaultLink) TableName() string { return "default_links" }

// BrowserSession is a serialized cookie/local-storage snapshot for a
// (platform, account). Workers only consume sessions; seeding is the
// sessionseed tool's job.
type BrowserSession struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Platform   Platform   `gorm:"column:platform;not null;uniqueIndex:idx_platform_account"`
	Account    string     `gorm:"column:account;not null;uniqueIndex:idx_platform_account"`
	Blob       []byte     `gorm:"column:blob"`
	Valid      bool       `gorm:"column:valid;default:false"`
	LastUsedAt *time.Time `gorm:"column:last_used_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (BrowserSession) TableName() string { return "browser_sessions" }

// Models lists every table this package owns, for migrations and tests.
func Models() []any {
	return []any{
		&SocialMediaPost{},
		&SocialMediaCredentials{},
		&WebhookLink{},
		&GlobalWebhookLink{},
		&DefaultLink{},
		&BrowserSession{},
	}
}
