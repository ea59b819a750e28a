package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"codequiz-publisher/pkg/config"
	"codequiz-publisher/pkg/errutil"
	"codequiz-publisher/pkg/task"
	"codequiz-publisher/services/media"
	"codequiz-publisher/services/quiz"
	"codequiz-publisher/services/social"
	"codequiz-publisher/services/telegram"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// pollQuestionLimit is Telegram's cap on poll question length.
const pollQuestionLimit = 300

// Controller walks a published task through the pipeline stages: image,
// optional video, Telegram post, social fan-out. Every stage re-reads the
// task row and skips work that already happened, so a crashed or duplicate
// job resumes instead of redoing.
type Controller struct {
	db        *gorm.DB
	renderer  *media.Renderer
	storage   *media.Storage
	cache     *media.URLCache
	generator *media.Generator
	publisher *telegram.Publisher
	enqueuer  task.Enqueuer

	chatID       int64
	videoEnabled bool
}

type ControllerParams struct {
	fx.In

	DB        *gorm.DB
	Renderer  *media.Renderer
	Storage   *media.Storage
	Cache     *media.URLCache
	Generator *media.Generator
	Publisher *telegram.Publisher
	Enqueuer  task.Enqueuer
	Cfg       *config.Config
}

func NewController(p ControllerParams) *Controller {
	return &Controller{
		db:           p.DB,
		renderer:     p.Renderer,
		storage:      p.Storage,
		cache:        p.Cache,
		generator:    p.Generator,
		publisher:    p.Publisher,
		enqueuer:     p.Enqueuer,
		chatID:       p.Cfg.Telegram.ChatID,
		videoEnabled: p.Cfg.Media.VideoEnabled,
	}
}

func (c *Controller) loadTask(ctx context.Context, taskID int64) (*quiz.Task, *quiz.TaskTranslation, error) {
	var t quiz.Task
	if err := c.db.WithContext(ctx).Preload("Translations").First(&t, taskID).Error; err != nil {
		return nil, nil, fmt.Errorf("load task %d: %w", taskID, err)
	}
	tr := t.PrimaryTranslation()
	if tr == nil {
		return nil, nil, errutil.InvalidInput(fmt.Sprintf("task %d has no translations", taskID))
	}
	return &t, tr, nil
}

// HandleStart kicks the pipeline off by ensuring the image stage runs.
func (c *Controller) HandleStart(ctx context.Context, t *asynq.Task) error {
	var payload task.PipelinePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal pipeline payload: %w", err)
	}
	return c.enqueueNext(ctx, task.RenderImageTask, task.QueueCritical, payload.TaskID)
}

// HandleRenderImage ensures the task has a rendered image URL, then hands
// off to the video or Telegram stage.
func (c *Controller) HandleRenderImage(ctx context.Context, t *asynq.Task) error {
	var payload task.PipelinePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal pipeline payload: %w", err)
	}

	row, tr, err := c.loadTask(ctx, payload.TaskID)
	if err != nil {
		return err
	}

	if _, err := c.EnsureImage(ctx, row, tr); err != nil {
		return err
	}

	if c.videoEnabled && row.VideoEnabled {
		return c.enqueueNext(ctx, task.GenerateVideoTask, task.QueueLow, row.ID)
	}
	return c.enqueueNext(ctx, task.PublishTelegramTask, task.QueueCritical, row.ID)
}

// EnsureImage resolves the task's image URL: cache, then the row, then a
// fresh render and upload. The resolved URL is persisted and cached.
func (c *Controller) EnsureImage(ctx context.Context, row *quiz.Task, tr *quiz.TaskTranslation) (string, error) {
	if url := c.cache.GetImageURL(ctx, row.ID); url != "" {
		return url, nil
	}
	if row.ImageURL != nil && *row.ImageURL != "" {
		c.cache.SetImageURL(ctx, row.ID, *row.ImageURL)
		return *row.ImageURL, nil
	}

	img, err := c.renderer.Render(tr.Question, row.Topic)
	if err != nil {
		return "", err
	}
	url, err := c.storage.Upload(ctx, media.ImageKey(row.ID), img, "image/png")
	if err != nil {
		return "", err
	}

	if err := c.db.WithContext(ctx).Model(&quiz.Task{}).
		Where("id = ?", row.ID).
		Update("image_url", url).Error; err != nil {
		return "", fmt.Errorf("persist image url: %w", err)
	}
	row.ImageURL = &url
	c.cache.SetImageURL(ctx, row.ID, url)

	zap.L().Info("task image rendered",
		zap.Int64("task_id", row.ID), zap.String("url", url))
	return url, nil
}

// HandleGenerateVideo produces the typing video when missing, then moves on
// to the Telegram stage. Video failure does not block the pipeline: the
// task publishes without one.
func (c *Controller) HandleGenerateVideo(ctx context.Context, t *asynq.Task) error {
	var payload task.PipelinePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal pipeline payload: %w", err)
	}

	row, tr, err := c.loadTask(ctx, payload.TaskID)
	if err != nil {
		return err
	}

	if _, err := c.EnsureVideo(ctx, row, tr); err != nil {
		if errutil.KindOf(err) == errutil.KindMediaGeneration {
			zap.L().Error("video generation failed, publishing without video",
				zap.Int64("task_id", row.ID), zap.Error(err))
		} else {
			return err
		}
	}
	return c.enqueueNext(ctx, task.PublishTelegramTask, task.QueueCritical, row.ID)
}

// EnsureVideo resolves the task's video URL the same way EnsureImage does.
func (c *Controller) EnsureVideo(ctx context.Context, row *quiz.Task, tr *quiz.TaskTranslation) (string, error) {
	if url := c.cache.GetVideoURL(ctx, row.ID); url != "" {
		return url, nil
	}
	if row.VideoURL != nil && *row.VideoURL != "" {
		c.cache.SetVideoURL(ctx, row.ID, *row.VideoURL)
		return *row.VideoURL, nil
	}

	track, err := media.PickTrack(ctx, c.db)
	if err != nil {
		zap.L().Warn("background track lookup failed, encoding without music", zap.Error(err))
	}

	video, err := c.generator.Generate(ctx, tr.Question, row.Topic, track, nil)
	if err != nil {
		return "", err
	}
	url, err := c.storage.Upload(ctx, media.VideoKey(row.ID), video, "video/mp4")
	if err != nil {
		return "", err
	}

	if err := c.db.WithContext(ctx).Model(&quiz.Task{}).
		Where("id = ?", row.ID).
		Update("video_url", url).Error; err != nil {
		return "", fmt.Errorf("persist video url: %w", err)
	}
	row.VideoURL = &url
	c.cache.SetVideoURL(ctx, row.ID, url)

	zap.L().Info("task video generated",
		zap.Int64("task_id", row.ID), zap.String("url", url))
	return url, nil
}

// HandlePublishTelegram posts the photo and the quiz poll to the channel,
// records the message id and triggers the social fan-out. A task that
// already carries a message id skips straight to fan-out.
func (c *Controller) HandlePublishTelegram(ctx context.Context, t *asynq.Task) error {
	var payload task.PipelinePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal pipeline payload: %w", err)
	}

	row, tr, err := c.loadTask(ctx, payload.TaskID)
	if err != nil {
		return err
	}

	if row.TelegramMessageID == nil {
		imageURL, err := c.EnsureImage(ctx, row, tr)
		if err != nil {
			return err
		}

		msgID, err := c.publisher.SendPhoto(ctx, c.chatID, imageURL, TelegramCaption(tr.Question, row.Topic))
		if err != nil {
			return fmt.Errorf("send photo for task %d: %w", row.ID, err)
		}

		now := time.Now()
		if err := c.db.WithContext(ctx).Model(&quiz.Task{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"telegram_message_id": msgID,
				"published_at":        now,
			}).Error; err != nil {
			return fmt.Errorf("persist telegram message id: %w", err)
		}

		var options []string
		if err := json.Unmarshal(tr.Answers, &options); err != nil {
			return errutil.InvalidInput("task answers unreadable", errutil.WithErr(err))
		}
		if _, err := c.publisher.SendQuizPoll(ctx, c.chatID,
			PollQuestion(tr.Question), options, tr.CorrectIndex, tr.Explanation,
		); err != nil {
			// photo landed and the id is saved; the poll can be retried by
			// hand without duplicating the photo
			zap.L().Error("quiz poll send failed after photo",
				zap.Int64("task_id", row.ID), zap.Error(err))
			return err
		}

		zap.L().Info("task published to Telegram",
			zap.Int64("task_id", row.ID), zap.Int("message_id", msgID))
	}

	return c.enqueueNext(ctx, task.FanOutTask, task.QueueDefault, row.ID)
}

func (c *Controller) enqueueNext(ctx context.Context, name, queue string, taskID int64) error {
	payload, _ := json.Marshal(task.PipelinePayload{TaskID: taskID})
	if _, err := c.enqueuer.Enqueue(ctx, asynq.NewTask(name, payload), asynq.Queue(queue)); err != nil {
		return fmt.Errorf("enqueue %s: %w", name, err)
	}
	return nil
}

var fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9+#-]*\n?.*?```")

// StripCode removes the fenced code block from a question; the rendered
// image carries the code, the caption carries the prose.
func StripCode(question string) string {
	out := fencedBlockRe.ReplaceAllString(question, "")
	return strings.TrimSpace(out)
}

// TelegramCaption builds the photo caption: the question prose plus the
// topic hashtag. Escaping happens at the send boundary.
func TelegramCaption(question, topic string) string {
	prose := StripCode(question)
	tag := "#" + strings.ToLower(strings.ReplaceAll(topic, " ", ""))
	if prose == "" {
		return tag
	}
	return prose + "\n\n" + tag
}

// PollQuestion fits the question prose into Telegram's poll limit.
func PollQuestion(question string) string {
	prose := StripCode(question)
	if prose == "" {
		prose = "What will this code print?"
	}
	runes := []rune(prose)
	if len(runes) <= pollQuestionLimit {
		return prose
	}
	return string(runes[:pollQuestionLimit-1]) + "…"
}

// taskLoader feeds the social dispatcher from the quiz tables, preferring
// cached media URLs over row reads.
type taskLoader struct {
	db    *gorm.DB
	cache *media.URLCache
}

func NewTaskLoader(db *gorm.DB, cache *media.URLCache) social.TaskLoader {
	return &taskLoader{db: db, cache: cache}
}

func (l *taskLoader) LoadTaskSnapshot(ctx context.Context, taskID int64) (*social.TaskSnapshot, error) {
	var t quiz.Task
	if err := l.db.WithContext(ctx).Preload("Translations").First(&t, taskID).Error; err != nil {
		return nil, err
	}
	tr := t.PrimaryTranslation()
	if tr == nil {
		return nil, errutil.InvalidInput(fmt.Sprintf("task %d has no translations", taskID))
	}

	snap := &social.TaskSnapshot{
		TaskID:   t.ID,
		Language: tr.Language,
		Topic:    t.Topic,
		Subtopic: t.Subtopic,
		Question: tr.Question,
	}

	if url := l.cache.GetImageURL(ctx, t.ID); url != "" {
		snap.ImageURL = url
	} else if t.ImageURL != nil {
		snap.ImageURL = *t.ImageURL
	}
	if url := l.cache.GetVideoURL(ctx, t.ID); url != "" {
		snap.VideoURL = url
	} else if t.VideoURL != nil {
		snap.VideoURL = *t.VideoURL
	}
	if snap.ImageURL == "" {
		return nil, errutil.InvalidInput(fmt.Sprintf("task %d has no rendered image", taskID))
	}
	return snap, nil
}
