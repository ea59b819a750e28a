package social

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"codequiz-publisher/pkg/config"
	"codequiz-publisher/pkg/errutil"
	"codequiz-publisher/pkg/task"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskSnapshot is what the dispatcher needs to know about a quiz task to
// publish it. The pipeline hands it over; this package never reads the
// tasks table.
type TaskSnapshot struct {
	TaskID   int64
	Language string
	Topic    string
	Subtopic string
	Question string
	ImageURL string
	VideoURL string
}

// Dispatcher owns the social_media_posts state machine: fan-out, claiming,
// backend selection and every status transition.
type Dispatcher struct {
	db         *gorm.DB
	enqueuer   task.Enqueuer
	registry   *Registry
	supervisor *BrowserSupervisor

	sessionDir       string
	browserTimeout   time.Duration
	httpTimeout      time.Duration
	skipIntermediate bool
	workDir          string
}

type DispatcherParams struct {
	fx.In

	DB         *gorm.DB
	Enqueuer   task.Enqueuer
	Registry   *Registry
	Supervisor *BrowserSupervisor
	Cfg        *config.Config
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		db:               p.DB,
		enqueuer:         p.Enqueuer,
		registry:         p.Registry,
		supervisor:       p.Supervisor,
		sessionDir:       p.Cfg.Social.SessionDir,
		browserTimeout:   p.Cfg.Social.BrowserTimeout,
		httpTimeout:      p.Cfg.Social.HTTPTimeout,
		skipIntermediate: p.Cfg.Social.SkipIntermediate,
		workDir:          p.Cfg.Media.WorkDir,
	}
}

// FanOut creates one pending row per reachable platform and enqueues a
// publish job for each. Platforms with no usable method right now are
// skipped instead of being fanned out into guaranteed failures. Re-running
// it is safe: the (task_id, platform) unique index swallows duplicates and
// already-existing rows are not re-enqueued.
func (d *Dispatcher) FanOut(ctx context.Context, snap *TaskSnapshot) error {
	reg, err := d.registry.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("registry snapshot: %w", err)
	}
	now := time.Now()

	created := 0
	for _, platform := range AllPlatforms {
		if !platformAvailable(platform, snap.Language, reg, now) {
			zap.L().Debug("platform skipped at fan-out, no publication method",
				zap.Int64("task_id", snap.TaskID),
				zap.String("platform", string(platform)))
			continue
		}
		row := SocialMediaPost{
			TaskID:   snap.TaskID,
			Platform: platform,
			Status:   StatusPending,
		}
		res := d.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "task_id"}, {Name: "platform"}},
				DoNothing: true,
			}).
			Create(&row)
		if res.Error != nil {
			return fmt.Errorf("create post row for %s: %w", platform, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}

		payload, _ := json.Marshal(task.PublishPostPayload{PostID: row.ID})
		if _, err := d.enqueuer.Enqueue(ctx,
			asynq.NewTask(task.PublishPostTask, payload),
			asynq.Queue(task.QueueDefault),
		); err != nil {
			return fmt.Errorf("enqueue publish for %s: %w", platform, err)
		}
		created++
	}
	zap.L().Info("task fanned out", zap.Int64("task_id", snap.TaskID),
		zap.Int("platforms", created))
	return nil
}

// Claim moves a pending row to processing with a fresh claim token.
// The conditional update makes exactly one of any concurrent claimers win;
// the rest get errAlreadyClaimed. A token carried by a retry re-claims the
// same row.
func (d *Dispatcher) Claim(ctx context.Context, postID int64, token string) (*SocialMediaPost, string, error) {
	if token == "" {
		token = uuid.NewString()
	}
	now := time.Now()

	res := d.db.WithContext(ctx).
		Model(&SocialMediaPost{}).
		Where("id = ? AND (status = ? OR (status = ? AND claim_token = ?))",
			postID, StatusPending, StatusProcessing, token).
		Updates(map[string]any{
			"status":      StatusProcessing,
			"claim_token": token,
			"claimed_at":  now,
		})
	if res.Error != nil {
		return nil, "", res.Error
	}
	if res.RowsAffected == 0 {
		return nil, "", errAlreadyClaimed
	}

	var post SocialMediaPost
	if err := d.db.WithContext(ctx).First(&post, postID).Error; err != nil {
		return nil, "", err
	}
	return &post, token, nil
}

var errAlreadyClaimed = fmt.Errorf("post already claimed or finished")

// IsAlreadyClaimed reports whether a Claim lost the race or found the row
// finished. Callers drop the job without error in that case.
func IsAlreadyClaimed(err error) bool { return err == errAlreadyClaimed }

// Publish runs one attempt for a claimed row: snapshot the registry, walk
// the platform's method chain to the first available backend, call it and
// translate the outcome into a state transition.
func (d *Dispatcher) Publish(ctx context.Context, post *SocialMediaPost, snap *TaskSnapshot, token string) error {
	reg, err := d.registry.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("registry snapshot: %w", err)
	}

	// serialize per platform: one in-flight attempt at a time
	var busy int64
	err = d.db.WithContext(ctx).
		Model(&SocialMediaPost{}).
		Where("platform = ? AND status = ? AND id <> ?", post.Platform, StatusProcessing, post.ID).
		Count(&busy).Error
	if err != nil {
		return err
	}
	if busy > 0 {
		return d.deferBusy(ctx, post, token)
	}

	req := d.buildRequest(post.Platform, snap, reg)
	backend := d.selectBackend(post.Platform, req, reg)
	if backend == nil {
		reason, flagCreds := unavailableReason(post.Platform, req.Language, reg)
		if flagCreds {
			if err := d.registry.MarkCredentialsNeedAttention(ctx, post.Platform); err != nil {
				zap.L().Error("failed to flag credentials", zap.Error(err))
			}
		}
		return d.markFailed(ctx, post, token, reason)
	}

	d.setMethod(ctx, post, token, backend.Kind())

	result, err := backend.Publish(ctx, req)
	if err != nil {
		return d.handleFailure(ctx, post, token, backend.Kind(), err)
	}
	if result.Pending {
		// Optimistic webhook dispatch awaiting confirmation: stay in
		// processing, record the correlation id and let the callback or
		// the janitor resolve it.
		return d.recordPending(ctx, post, token, result)
	}
	return d.markPublished(ctx, post, token, result)
}

func (d *Dispatcher) buildRequest(platform Platform, snap *TaskSnapshot, reg *Snapshot) PublishRequest {
	link := reg.LinkFor(snap.Language, snap.Topic)
	return PublishRequest{
		TaskID:   snap.TaskID,
		Platform: platform,
		Language: snap.Language,
		Topic:    snap.Topic,
		Caption:  BuildCaption(snap, link),
		ImageURL: snap.ImageURL,
		VideoURL: snap.VideoURL,
		Link:     link,
	}
}

// methodAvailable reports whether one backend kind could run right now:
// valid API credentials, a valid browser session, or at least one matching
// webhook.
func methodAvailable(method Method, platform Platform, language string, reg *Snapshot, now time.Time) bool {
	switch method {
	case MethodAPI:
		creds, ok := reg.Credentials[platform]
		return ok && creds.TokenValid(now) && APISupported(platform)
	case MethodBrowser:
		session, ok := reg.Sessions[platform]
		return ok && session.Valid && BrowserSupported(platform)
	case MethodWebhook:
		return len(reg.WebhooksFor(platform, language)) > 0
	}
	return false
}

// platformAvailable reports whether any method in the platform's chain
// could run. Fan-out consults it so unreachable platforms never get a row.
func platformAvailable(platform Platform, language string, reg *Snapshot, now time.Time) bool {
	for _, method := range MethodOrderFor(platform) {
		if methodAvailable(method, platform, language, reg, now) {
			return true
		}
	}
	return false
}

// selectBackend walks the platform's method chain and returns the first
// available backend.
func (d *Dispatcher) selectBackend(platform Platform, req PublishRequest, reg *Snapshot) Backend {
	now := time.Now()
	for _, method := range MethodOrderFor(platform) {
		if !methodAvailable(method, platform, req.Language, reg, now) {
			continue
		}
		switch method {
		case MethodAPI:
			backend, err := newAPIBackend(platform, reg.Credentials[platform], d.httpTimeout)
			if err != nil {
				continue
			}
			return backend
		case MethodBrowser:
			headless := true
			if creds, ok := reg.Credentials[platform]; ok {
				headless = creds.HeadlessMode
			}
			return &browserBackend{
				platform:    platform,
				session:     reg.Sessions[platform],
				headless:    headless,
				timeout:     d.browserTimeout,
				httpTimeout: d.httpTimeout,
				skipHint:    d.skipIntermediate,
				workDir:     d.workDir,
				supervisor:  d.supervisor,
			}
		case MethodWebhook:
			return newWebhookBackend(reg.WebhooksFor(platform, req.Language), d.httpTimeout)
		}
	}
	return nil
}

// unavailableReason explains why no backend could run. A browser-first
// platform with no usable session is an operator problem: the credentials
// get flagged so the platform halts until the session is re-seeded.
func unavailableReason(platform Platform, language string, reg *Snapshot) (string, bool) {
	order := MethodOrderFor(platform)
	if len(order) > 0 && order[0] == MethodBrowser {
		if s, ok := reg.Sessions[platform]; !ok || !s.Valid {
			return "session missing", true
		}
	}
	if len(reg.WebhooksFor(platform, language)) == 0 {
		return "no available publication method: no credentials, session or webhook configured", false
	}
	return "no available publication method", false
}

// deferBusy puts a claimed row back to pending and re-enqueues it shortly;
// another attempt on the same platform is in flight.
func (d *Dispatcher) deferBusy(ctx context.Context, post *SocialMediaPost, token string) error {
	res := d.db.WithContext(ctx).
		Model(&SocialMediaPost{}).
		Where("id = ? AND status = ? AND claim_token = ?", post.ID, StatusProcessing, token).
		Updates(map[string]any{
			"status":      StatusPending,
			"claim_token": nil,
			"claimed_at":  nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	payload, _ := json.Marshal(task.PublishPostPayload{PostID: post.ID})
	_, err := d.enqueuer.Enqueue(ctx,
		asynq.NewTask(task.PublishPostTask, payload),
		asynq.Queue(task.QueueDefault),
		asynq.ProcessIn(busyDelay()),
	)
	return err
}

const platformBusyDelay = 30 * time.Second

// busyDelay jitters the deferral so two workers that deferred each other at
// the same instant do not reschedule in lockstep.
func busyDelay() time.Duration {
	return platformBusyDelay + time.Duration(rand.Int63n(int64(platformBusyDelay)))
}

// handleFailure converts a backend error into the next state. Retryable
// kinds re-enqueue with backoff until the platform's attempt ceiling;
// everything else fails the row now.
func (d *Dispatcher) handleFailure(ctx context.Context, post *SocialMediaPost, token string, method Method, pubErr error) error {
	kind := errutil.KindOf(pubErr)

	switch kind {
	case errutil.KindAuthExpired:
		if err := d.registry.MarkCredentialsNeedAttention(ctx, post.Platform); err != nil {
			zap.L().Error("failed to flag credentials", zap.Error(err))
		}
		return d.markFailed(ctx, post, token, pubErr.Error())
	case errutil.KindSessionExpired:
		if err := d.registry.InvalidateSession(ctx, post.Platform); err != nil {
			zap.L().Error("failed to invalidate session", zap.Error(err))
		}
		return d.markFailed(ctx, post, token, pubErr.Error())
	}

	if !errutil.IsRetryable(pubErr) {
		return d.markFailed(ctx, post, token, pubErr.Error())
	}

	policy := PolicyFor(post.Platform)
	if post.RetryCount+1 >= policy.MaxAttempts {
		return d.markFailed(ctx, post, token,
			fmt.Sprintf("gave up after %d attempts: %v", post.RetryCount+1, pubErr))
	}

	delay := policy.Delay(post.RetryCount)
	if hint := errutil.RetryAfterHint(pubErr); hint > delay {
		delay = hint
	}
	return d.requeueRetry(ctx, post, token, method, pubErr.Error(), delay)
}

func (d *Dispatcher) setMethod(ctx context.Context, post *SocialMediaPost, token string, method Method) {
	err := d.db.WithContext(ctx).
		Model(&SocialMediaPost{}).
		Where("id = ? AND claim_token = ?", post.ID, token).
		Update("method", method).Error
	if err != nil {
		zap.L().Warn("failed to record method", zap.Int64("post_id", post.ID), zap.Error(err))
	}
	post.Method = method
}

// markPublished is terminal. Guarded by the claim token so a janitor-reset
// row republished elsewhere cannot be clobbered by a stale worker.
func (d *Dispatcher) markPublished(ctx context.Context, post *SocialMediaPost, token string, result *PublishResult) error {
	now := time.Now()
	updates := map[string]any{
		"status":        StatusPublished,
		"published_at":  now,
		"error_message": nil,
		"claim_token":   nil,
		"claimed_at":    nil,
	}
	if result.PostID != "" {
		updates["post_id"] = result.PostID
	}
	if result.PostURL != "" {
		updates["post_url"] = result.PostURL
	}

	res := d.db.WithContext(ctx).
		Model(&SocialMediaPost{}).
		Where("id = ? AND status = ? AND claim_token = ?", post.ID, StatusProcessing, token).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		zap.L().Warn("stale worker lost publish race", zap.Int64("post_id", post.ID))
		return nil
	}
	zap.L().Info("post published",
		zap.Int64("post_id", post.ID),
		zap.Int64("task_id", post.TaskID),
		zap.String("platform", string(post.Platform)),
		zap.String("method", string(post.Method)),
	)
	return nil
}

func (d *Dispatcher) recordPending(ctx context.Context, post *SocialMediaPost, token string, result *PublishResult) error {
	return d.db.WithContext(ctx).
		Model(&SocialMediaPost{}).
		Where("id = ? AND claim_token = ?", post.ID, token).
		Updates(map[string]any{"post_id": result.PostID}).Error
}

func (d *Dispatcher) markFailed(ctx context.Context, post *SocialMediaPost, token string, reason string) error {
	res := d.db.WithContext(ctx).
		Model(&SocialMediaPost{}).
		Where("id = ? AND status = ? AND claim_token = ?", post.ID, StatusProcessing, token).
		Updates(map[string]any{
			"status":        StatusFailed,
			"error_message": reason,
			"claim_token":   nil,
			"claimed_at":    nil,
		})
	if res.Error != nil {
		return res.Error
	}
	zap.L().Warn("post failed",
		zap.Int64("post_id", post.ID),
		zap.String("platform", string(post.Platform)),
		zap.String("reason", reason),
	)
	return nil
}

// requeueRetry keeps the row processing under the same claim token and
// schedules the next attempt after the backoff delay.
func (d *Dispatcher) requeueRetry(ctx context.Context, post *SocialMediaPost, token string, method Method, reason string, delay time.Duration) error {
	res := d.db.WithContext(ctx).
		Model(&SocialMediaPost{}).
		Where("id = ? AND status = ? AND claim_token = ?", post.ID, StatusProcessing, token).
		Updates(map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": reason,
			"claimed_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	payload, _ := json.Marshal(task.PublishPostPayload{PostID: post.ID, ClaimToken: token})
	_, err := d.enqueuer.Enqueue(ctx,
		asynq.NewTask(task.PublishPostTask, payload),
		asynq.Queue(task.QueueDefault),
		asynq.ProcessIn(delay),
	)
	if err != nil {
		return fmt.Errorf("re-enqueue retry: %w", err)
	}
	zap.L().Info("post retry scheduled",
		zap.Int64("post_id", post.ID),
		zap.String("platform", string(post.Platform)),
		zap.String("method", string(method)),
		zap.Duration("delay", delay),
		zap.Int("retry_count", post.RetryCount+1),
	)
	return nil
}
