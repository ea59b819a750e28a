package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"codequiz-publisher/pkg/task"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	enqueuer task.Enqueuer
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Enqueuer task.Enqueuer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		enqueuer: p.Enqueuer,
	}
}

type TranslationInput struct {
	Language     string   `json:"language"`
	Question     string   `json:"question"`
	Answers      []string `json:"answers"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

type CreateTaskInput struct {
	Topic        string             `json:"topic"`
	Subtopic     string             `json:"subtopic"`
	Difficulty   string             `json:"difficulty"`
	VideoEnabled bool               `json:"video_enabled"`
	Translations []TranslationInput `json:"translations"`
}

func (s *Service) Create(ctx context.Context, in CreateTaskInput) (*Task, error) {
	if in.Topic == "" || len(in.Translations) == 0 {
		return nil, fmt.Errorf("topic and at least one translation are required")
	}

	t := &Task{
		Topic:              in.Topic,
		Subtopic:           in.Subtopic,
		Difficulty:         in.Difficulty,
		VideoEnabled:       in.VideoEnabled,
		TranslationGroupID: s.node.Generate().String(),
	}
	for _, tr := range in.Translations {
		answers, err := json.Marshal(tr.Answers)
		if err != nil {
			return nil, fmt.Errorf("marshal answers: %w", err)
		}
		if tr.CorrectIndex < 0 || tr.CorrectIndex >= len(tr.Answers) {
			return nil, fmt.Errorf("correct_index out of range for language %s", tr.Language)
		}
		t.Translations = append(t.Translations, TaskTranslation{
			Language:     tr.Language,
			Question:     tr.Question,
			Answers:      answers,
			CorrectIndex: tr.CorrectIndex,
			Explanation:  tr.Explanation,
		})
	}

	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Task, error) {
	var t Task
	if err := s.db.WithContext(ctx).
		Preload("Translations").
		First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// Publish flips the task to published and kicks off the pipeline. The flip
// is a conditional update so concurrent calls enqueue the pipeline once.
func (s *Service) Publish(ctx context.Context, id int64) error {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&Task{}).
		Where("id = ? AND published = ?", id, false).
		Updates(map[string]any{
			"published":    true,
			"published_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("publish task %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		// already published (or missing) — the pipeline is idempotent,
		// nothing to enqueue
		return nil
	}

	payload, _ := json.Marshal(task.PipelinePayload{TaskID: id})
	if _, err := s.enqueuer.Enqueue(ctx,
		asynq.NewTask(task.PipelineStartTask, payload),
		asynq.Queue(task.QueueCritical),
	); err != nil {
		return fmt.Errorf("enqueue pipeline for task %d: %w", id, err)
	}

	zap.L().Info("task published, pipeline enqueued", zap.Int64("task_id", id))
	return nil
}

// Import loads tasks from a JSON file (an array of CreateTaskInput) and
// optionally publishes each one.
func (s *Service) Import(ctx context.Context, path string, publish bool) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read import file: %w", err)
	}

	var inputs []CreateTaskInput
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return 0, fmt.Errorf("parse import file: %w", err)
	}

	imported := 0
	for i, in := range inputs {
		t, err := s.Create(ctx, in)
		if err != nil {
			return imported, fmt.Errorf("import entry %d: %w", i, err)
		}
		if publish {
			if err := s.Publish(ctx, t.ID); err != nil {
				return imported, err
			}
		}
		imported++
	}
	return imported, nil
}

// NormalizeSubtopics rewrites subtopic names to their slug form. With
// apply=false it only reports how many rows would change.
func (s *Service) NormalizeSubtopics(ctx context.Context, apply bool) (int, error) {
	var tasks []Task
	if err := s.db.WithContext(ctx).
		Where("subtopic <> ''").
		Find(&tasks).Error; err != nil {
		return 0, err
	}

	changed := 0
	for _, t := range tasks {
		normalized := slug.Make(t.Subtopic)
		if normalized == t.Subtopic {
			continue
		}
		changed++
		if !apply {
			continue
		}
		if err := s.db.WithContext(ctx).
			Model(&Task{}).
			Where("id = ?", t.ID).
			Update("subtopic", normalized).Error; err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// ResetSequences realigns the postgres ID sequences after bulk imports that
// carried explicit IDs. No-op on other dialects.
func (s *Service) ResetSequences(ctx context.Context) error {
	if s.db.Dialector.Name() != "postgres" {
		return nil
	}
	for _, table := range []string{"tasks", "task_translations", "social_media_posts"} {
		stmt := fmt.Sprintf(
			"SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE(MAX(id), 1)) FROM %s",
			table, table,
		)
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("reset sequence for %s: %w", table, err)
		}
	}
	return nil
}
