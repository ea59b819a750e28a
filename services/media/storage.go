package media

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"codequiz-publisher/pkg/config"
	"codequiz-publisher/pkg/errutil"
	"codequiz-publisher/services/quiz"

	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	uploadBackoffBase = 500 * time.Millisecond
	uploadBackoffCap  = 10 * time.Second
)

// Storage uploads derived media to the object store and builds the public
// URLs recorded on tasks.
type Storage struct {
	client       *minio.Client
	bucket       string
	publicDomain string
	maxRetries   int
}

type StorageParams struct {
	fx.In
	Client *minio.Client
	Cfg    *config.Config
}

func NewStorage(p StorageParams) *Storage {
	return &Storage{
		client:       p.Client,
		bucket:       p.Cfg.Minio.BucketName,
		publicDomain: p.Cfg.Minio.PublicDomain,
		maxRetries:   p.Cfg.Media.UploadRetries,
	}
}

func ImageKey(taskID int64) string { return fmt.Sprintf("tasks/%d/question.png", taskID) }
func VideoKey(taskID int64) string { return fmt.Sprintf("tasks/%d/question.mp4", taskID) }

// PublicURL builds the stable public URL for an object key.
func (s *Storage) PublicURL(key string) string {
	return fmt.Sprintf("https://%s/%s", s.publicDomain, key)
}

// Upload writes data under key, overwriting any previous object. Transient
// failures are retried with exponential backoff; exhaustion surfaces as
// StorageUnavailable.
func (s *Storage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	delay := uploadBackoffBase
	var lastErr error

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		_, err := s.client.PutObject(ctx, s.bucket, key,
			bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType},
		)
		if err == nil {
			return s.PublicURL(key), nil
		}
		lastErr = err

		zap.L().Warn("object store upload failed",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return "", errutil.StorageUnavailable("upload cancelled", errutil.WithErr(ctx.Err()))
		case <-time.After(delay):
		}
		delay *= 2
		if delay > uploadBackoffCap {
			delay = uploadBackoffCap
		}
	}

	return "", errutil.StorageUnavailable(
		fmt.Sprintf("upload %s: retries exhausted", key),
		errutil.WithErr(lastErr),
	)
}

// RewriteURL replaces the host of raw when it matches oldHost, preserving
// scheme, path and query. Returns the rewritten URL and whether a change
// was made. Applying it twice is a no-op.
func RewriteURL(raw, oldHost, newHost string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host != oldHost {
		return raw, false
	}
	u.Host = newHost
	return u.String(), true
}

// MigrateHost rewrites stored task media URLs from oldHost to newHost.
// It is the CDN-origin switch routine: paths stay intact, non-matching
// hosts are untouched and a second run updates zero rows.
func MigrateHost(ctx context.Context, db *gorm.DB, oldHost, newHost string, dryRun bool) (int, error) {
	var tasks []quiz.Task
	if err := db.WithContext(ctx).
		Where("image_url IS NOT NULL OR video_url IS NOT NULL").
		Find(&tasks).Error; err != nil {
		return 0, err
	}

	updated := 0
	for _, t := range tasks {
		changes := map[string]any{}
		if t.ImageURL != nil {
			if rewritten, changed := RewriteURL(*t.ImageURL, oldHost, newHost); changed {
				changes["image_url"] = rewritten
			}
		}
		if t.VideoURL != nil {
			if rewritten, changed := RewriteURL(*t.VideoURL, oldHost, newHost); changed {
				changes["video_url"] = rewritten
			}
		}
		if len(changes) == 0 {
			continue
		}
		updated++
		if dryRun {
			continue
		}
		if err := db.WithContext(ctx).
			Model(&quiz.Task{}).
			Where("id = ?", t.ID).
			Updates(changes).Error; err != nil {
			return updated, err
		}
	}
	return updated, nil
}
