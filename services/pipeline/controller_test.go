package pipeline

import (
	"context"
	"strings"
	"testing"

	"codequiz-publisher/services/media"
	"codequiz-publisher/services/quiz"
	"codequiz-publisher/services/testutil"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

const questionWithCode = "What will this code print?\n```python\nprint([x*x for x in range(3)])\n```\nThink before you scroll!"

func TestStripCode(t *testing.T) {
	require.Equal(t,
		"What will this code print?\n\nThink before you scroll!",
		StripCode(questionWithCode),
	)
	require.Equal(t, "no code here", StripCode("no code here"))
	require.Equal(t, "", StripCode("```python\nprint(1)\n```"))
}

func TestTelegramCaption(t *testing.T) {
	caption := TelegramCaption(questionWithCode, "Python")
	require.Contains(t, caption, "What will this code print?")
	require.NotContains(t, caption, "```")
	require.True(t, strings.HasSuffix(caption, "#python"))

	// code-only question still gets a usable caption
	require.Equal(t, "#python", TelegramCaption("```python\nprint(1)\n```", "Python"))
}

func TestPollQuestionTruncation(t *testing.T) {
	require.Equal(t, "Short?", PollQuestion("Short?"))

	long := strings.Repeat("a", 400)
	got := PollQuestion(long)
	require.LessOrEqual(t, len([]rune(got)), pollQuestionLimit)
	require.True(t, strings.HasSuffix(got, "…"))

	require.Equal(t, "What will this code print?", PollQuestion("```go\nfmt.Println(1)\n```"))
}

// missCache is a URLCache whose redis client cannot connect; every read is
// a miss and every write a logged no-op, which is the advisory contract.
func missCache() *media.URLCache {
	return media.NewURLCache(media.URLCacheParams{
		Redis: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}),
	})
}

func TestTaskLoaderBuildsSnapshot(t *testing.T) {
	db := testutil.NewTestDB(t, &quiz.Task{}, &quiz.TaskTranslation{})
	ctx := context.Background()

	img := "https://cdn.example.com/tasks/1/question.png"
	vid := "https://cdn.example.com/tasks/1/question.mp4"
	row := quiz.Task{
		Topic:    "Python",
		Subtopic: "generators",
		ImageURL: &img,
		VideoURL: &vid,
		Translations: []quiz.TaskTranslation{{
			Language:     "en",
			Question:     questionWithCode,
			Answers:      datatypes.JSON([]byte(`["[0, 1, 4]","[1, 4, 9]","error"]`)),
			CorrectIndex: 0,
		}},
	}
	require.NoError(t, db.Create(&row).Error)

	loader := NewTaskLoader(db, missCache())
	snap, err := loader.LoadTaskSnapshot(ctx, row.ID)
	require.NoError(t, err)
	require.Equal(t, row.ID, snap.TaskID)
	require.Equal(t, "en", snap.Language)
	require.Equal(t, "Python", snap.Topic)
	require.Equal(t, img, snap.ImageURL)
	require.Equal(t, vid, snap.VideoURL)
}

func TestTaskLoaderRejectsUnrenderedTask(t *testing.T) {
	db := testutil.NewTestDB(t, &quiz.Task{}, &quiz.TaskTranslation{})

	row := quiz.Task{
		Topic: "Go",
		Translations: []quiz.TaskTranslation{{
			Language: "en", Question: "q",
			Answers: datatypes.JSON([]byte(`["a","b"]`)), CorrectIndex: 1,
		}},
	}
	require.NoError(t, db.Create(&row).Error)

	loader := NewTaskLoader(db, missCache())
	_, err := loader.LoadTaskSnapshot(context.Background(), row.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no rendered image")
}
