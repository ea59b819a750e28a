package quiz

import (
	"time"

	"gorm.io/datatypes"
)

// Task is the unit of quiz work. A task owns its translations and, through
// the social package, its publication attempt rows.
type Task struct {
	ID                 int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Topic              string     `gorm:"column:topic;not null;index"`
	Subtopic           string     `gorm:"column:subtopic;index"`
	Difficulty         string     `gorm:"column:difficulty"`
	Published          bool       `gorm:"column:published;default:false;index"`
	PublishedAt        *time.Time `gorm:"column:published_at"`
	ImageURL           *string    `gorm:"column:image_url"`
	VideoURL           *string    `gorm:"column:video_url"`
	TelegramMessageID  *int       `gorm:"column:telegram_message_id"`
	TranslationGroupID string     `gorm:"column:translation_group_id;index"`
	VideoEnabled       bool       `gorm:"column:video_enabled;default:false"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	// Relations
	Translations []TaskTranslation `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

func (Task) TableName() string { return "tasks" }

// TaskTranslation holds one language's copy of a task: the question with
// its fenced code block, the answer list and the explanation.
type TaskTranslation struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement"`
	TaskID       int64          `gorm:"column:task_id;not null;uniqueIndex:idx_task_language"`
	Language     string         `gorm:"column:language;not null;uniqueIndex:idx_task_language"`
	Question     string         `gorm:"column:question;type:text;not null"`
	Answers      datatypes.JSON `gorm:"column:answers;type:text;not null"`
	CorrectIndex int            `gorm:"column:correct_index;not null"`
	Explanation  string         `gorm:"column:explanation;type:text"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (TaskTranslation) TableName() string { return "task_translations" }

// Translation returns the copy for lang, or nil.
func (t *Task) Translation(lang string) *TaskTranslation {
	for i := range t.Translations {
		if t.Translations[i].Language == lang {
			return &t.Translations[i]
		}
	}
	return nil
}

// PrimaryTranslation picks the copy used for rendering and Telegram:
// English when present, otherwise the first one stored.
func (t *Task) PrimaryTranslation() *TaskTranslation {
	if tr := t.Translation("en"); tr != nil {
		return tr
	}
	if len(t.Translations) > 0 {
		return &t.Translations[0]
	}
	return nil
}
