package social

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codequiz-publisher/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service exposes the operator-facing operations on publication state:
// listing, manual retries, callback resolution and credential toggles.
type Service struct {
	db       *gorm.DB
	enqueuer task.Enqueuer
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Enqueuer task.Enqueuer
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB, enqueuer: p.Enqueuer}
}

// ListPostsByStatus returns posts in a given state, newest first.
func (s *Service) ListPostsByStatus(ctx context.Context, status Status, limit int) ([]SocialMediaPost, error) {
	if limit <= 0 {
		limit = 50
	}
	var posts []SocialMediaPost
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// RetryPost puts a failed row back to pending and enqueues it. The attempt
// counter keeps counting: retries increment retry_count on the same row, an
// operator retry included. Only failed rows are retryable by hand;
// everything else is either in flight or done.
func (s *Service) RetryPost(ctx context.Context, postID int64) error {
	res := s.db.WithContext(ctx).
		Model(&SocialMediaPost{}).
		Where("id = ? AND status = ?", postID, StatusFailed).
		Updates(map[string]any{
			"status":        StatusPending,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("post %d is not in failed state", postID)
	}

	payload, _ := json.Marshal(task.PublishPostPayload{PostID: postID})
	if _, err := s.enqueuer.Enqueue(ctx,
		asynq.NewTask(task.PublishPostTask, payload),
		asynq.Queue(task.QueueDefault),
	); err != nil {
		return fmt.Errorf("enqueue manual retry: %w", err)
	}
	zap.L().Info("manual retry queued", zap.Int64("post_id", postID))
	return nil
}

// CallbackResult is an inbound confirmation from a webhook automation that
// was configured with await_callback.
type CallbackResult struct {
	TaskID   int64    `json:"task_id"`
	Platform Platform `json:"platform"`
	Success  bool     `json:"success"`
	PostURL  string   `json:"post_url,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// ResolveCallback settles the processing row the callback refers to. An
// unknown or already-settled row is reported but not an error; automations
// retry their callbacks.
func (s *Service) ResolveCallback(ctx context.Context, cb CallbackResult) error {
	updates := map[string]any{
		"claim_token": nil,
		"claimed_at":  nil,
	}
	if cb.Success {
		updates["status"] = StatusPublished
		updates["published_at"] = time.Now()
		updates["error_message"] = nil
		if cb.PostURL != "" {
			updates["post_url"] = cb.PostURL
		}
	} else {
		updates["status"] = StatusFailed
		updates["error_message"] = cb.Error
	}

	res := s.db.WithContext(ctx).
		Model(&SocialMediaPost{}).
		Where("task_id = ? AND platform = ? AND status = ?",
			cb.TaskID, cb.Platform, StatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		zap.L().Warn("callback matched no processing row",
			zap.Int64("task_id", cb.TaskID),
			zap.String("platform", string(cb.Platform)),
		)
		return nil
	}
	zap.L().Info("webhook callback resolved",
		zap.Int64("task_id", cb.TaskID),
		zap.String("platform", string(cb.Platform)),
		zap.Bool("success", cb.Success),
	)
	return nil
}

// DeactivateCredentials stops API publishing for a platform.
func (s *Service) DeactivateCredentials(ctx context.Context, platform Platform) error {
	return s.db.WithContext(ctx).
		Model(&SocialMediaCredentials{}).
		Where("platform = ?", platform).
		Update("is_active", false).Error
}

// StatusSummary counts posts per status for a task.
func (s *Service) StatusSummary(ctx context.Context, taskID int64) (map[Status]int, error) {
	var rows []struct {
		Status Status
		N      int
	}
	err := s.db.WithContext(ctx).
		Model(&SocialMediaPost{}).
		Select("status, count(*) as n").
		Where("task_id = ?", taskID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[Status]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
