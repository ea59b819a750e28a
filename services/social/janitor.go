package social

import (
	"context"
	"encoding/json"
	"time"

	"codequiz-publisher/pkg/config"
	"codequiz-publisher/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Janitor recovers rows stranded in processing after a worker crash or a
// wedged browser, and reaps orphaned browser contexts. It runs on a ticker
// inside the worker process.
type Janitor struct {
	db         *gorm.DB
	enqueuer   task.Enqueuer
	supervisor *BrowserSupervisor
	interval   time.Duration
	threshold  time.Duration
}

type JanitorParams struct {
	fx.In

	DB         *gorm.DB
	Enqueuer   task.Enqueuer
	Supervisor *BrowserSupervisor
	Cfg        *config.Config
}

func NewJanitor(p JanitorParams) *Janitor {
	return &Janitor{
		db:         p.DB,
		enqueuer:   p.Enqueuer,
		supervisor: p.Supervisor,
		interval:   p.Cfg.Social.JanitorInterval,
		threshold:  p.Cfg.Social.RecoveryThreshold,
	}
}

func (j *Janitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(j.interval):
			if err := j.Sweep(ctx); err != nil {
				zap.L().Error("janitor sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep resets processing rows whose claim is older than the recovery
// threshold back to pending and re-enqueues them. The old claim token is
// cleared, so a zombie worker that wakes up later loses every guarded
// update it tries.
func (j *Janitor) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-j.threshold)

	var stale []SocialMediaPost
	err := j.db.WithContext(ctx).
		Where("status = ? AND claimed_at < ?", StatusProcessing, cutoff).
		Find(&stale).Error
	if err != nil {
		return err
	}

	for _, post := range stale {
		res := j.db.WithContext(ctx).
			Model(&SocialMediaPost{}).
			Where("id = ? AND status = ? AND claimed_at < ?", post.ID, StatusProcessing, cutoff).
			Updates(map[string]any{
				"status":      StatusPending,
				"claim_token": nil,
				"claimed_at":  nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}

		payload, _ := json.Marshal(task.PublishPostPayload{PostID: post.ID})
		if _, err := j.enqueuer.Enqueue(ctx,
			asynq.NewTask(task.PublishPostTask, payload),
			asynq.Queue(task.QueueLow),
		); err != nil {
			zap.L().Error("failed to re-enqueue recovered post",
				zap.Int64("post_id", post.ID), zap.Error(err))
			continue
		}
		zap.L().Warn("recovered stranded post",
			zap.Int64("post_id", post.ID),
			zap.String("platform", string(post.Platform)),
		)
	}

	j.supervisor.Reap(j.threshold)
	return nil
}

func registerJanitor(lc fx.Lifecycle, j *Janitor) {
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go j.Run(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}
