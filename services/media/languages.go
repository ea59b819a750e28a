package media

import (
	"context"
	"fmt"
	"strings"

	"codequiz-publisher/services/quiz"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FixUnsupportedLanguages scans every translation's fenced code block and
// rewrites language tags the highlighter does not recognize to the default
// language. With apply=false it only reports the affected rows.
func FixUnsupportedLanguages(ctx context.Context, db *gorm.DB, apply bool) (int, error) {
	var translations []quiz.TaskTranslation
	if err := db.WithContext(ctx).Find(&translations).Error; err != nil {
		return 0, err
	}

	fixed := 0
	for _, tr := range translations {
		m := fencedBlockRe.FindStringSubmatch(tr.Question)
		if m == nil {
			continue
		}
		tag := strings.ToLower(strings.TrimSpace(m[1]))
		if tag == "" || KnownLanguage(tag) {
			continue
		}

		fixed++
		zap.L().Info("unsupported code language tag",
			zap.Int64("translation_id", tr.ID),
			zap.Int64("task_id", tr.TaskID),
			zap.String("tag", tag),
		)
		if !apply {
			continue
		}

		rewritten := strings.Replace(tr.Question,
			fmt.Sprintf("```%s", m[1]),
			fmt.Sprintf("```%s", DefaultLanguage),
			1,
		)
		if err := db.WithContext(ctx).
			Model(&quiz.TaskTranslation{}).
			Where("id = ?", tr.ID).
			Update("question", rewritten).Error; err != nil {
			return fixed, err
		}
	}
	return fixed, nil
}
