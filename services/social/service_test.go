package social

import (
	"context"
	"testing"
	"time"

	"codequiz-publisher/services/testutil"

	"github.com/stretchr/testify/require"
)

func TestRetryPostRequeuesFailedRow(t *testing.T) {
	db := testutil.NewTestDB(t, Models()...)
	enq := &fakeEnqueuer{}
	svc := &Service{db: db, enqueuer: enq}
	ctx := context.Background()

	msg := "gave up after 3 attempts"
	row := SocialMediaPost{
		TaskID: 1, Platform: TikTok, Status: StatusFailed,
		RetryCount: 3, ErrorMessage: &msg,
	}
	require.NoError(t, db.Create(&row).Error)

	require.NoError(t, svc.RetryPost(ctx, row.ID))

	var got SocialMediaPost
	require.NoError(t, db.First(&got, row.ID).Error)
	require.Equal(t, StatusPending, got.Status)
	// the counter keeps counting across operator retries
	require.Equal(t, 4, got.RetryCount)
	require.Nil(t, got.ErrorMessage)
	require.Len(t, enq.tasks, 1)
}

func TestRetryPostRejectsNonFailedRows(t *testing.T) {
	db := testutil.NewTestDB(t, Models()...)
	enq := &fakeEnqueuer{}
	svc := &Service{db: db, enqueuer: enq}
	ctx := context.Background()

	row := SocialMediaPost{TaskID: 2, Platform: Twitter, Status: StatusPublished}
	require.NoError(t, db.Create(&row).Error)

	require.Error(t, svc.RetryPost(ctx, row.ID))
	require.Empty(t, enq.tasks)

	var got SocialMediaPost
	require.NoError(t, db.First(&got, row.ID).Error)
	require.Equal(t, StatusPublished, got.Status)
}

func TestResolveCallbackFailure(t *testing.T) {
	db := testutil.NewTestDB(t, Models()...)
	svc := &Service{db: db, enqueuer: &fakeEnqueuer{}}
	ctx := context.Background()

	token := "tok"
	now := time.Now()
	require.NoError(t, db.Create(&SocialMediaPost{
		TaskID: 3, Platform: Instagram, Status: StatusProcessing,
		ClaimToken: &token, ClaimedAt: &now,
	}).Error)

	require.NoError(t, svc.ResolveCallback(ctx, CallbackResult{
		TaskID: 3, Platform: Instagram, Success: false, Error: "caption rejected",
	}))

	var got SocialMediaPost
	require.NoError(t, db.Where("task_id = ?", 3).First(&got).Error)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "caption rejected", *got.ErrorMessage)
	require.Nil(t, got.ClaimToken)
}

func TestResolveCallbackIgnoresSettledRows(t *testing.T) {
	db := testutil.NewTestDB(t, Models()...)
	svc := &Service{db: db, enqueuer: &fakeEnqueuer{}}
	ctx := context.Background()

	url := "https://www.instagram.com/p/first/"
	require.NoError(t, db.Create(&SocialMediaPost{
		TaskID: 4, Platform: Instagram, Status: StatusPublished, PostURL: &url,
	}).Error)

	// a duplicate callback must not rewrite the settled row
	require.NoError(t, svc.ResolveCallback(ctx, CallbackResult{
		TaskID: 4, Platform: Instagram, Success: false, Error: "late duplicate",
	}))

	var got SocialMediaPost
	require.NoError(t, db.Where("task_id = ?", 4).First(&got).Error)
	require.Equal(t, StatusPublished, got.Status)
	require.Equal(t, url, *got.PostURL)
}

func TestStatusSummary(t *testing.T) {
	db := testutil.NewTestDB(t, Models()...)
	svc := &Service{db: db, enqueuer: &fakeEnqueuer{}}
	ctx := context.Background()

	for i, st := range []Status{StatusPublished, StatusPublished, StatusFailed, StatusPending} {
		require.NoError(t, db.Create(&SocialMediaPost{
			TaskID: 5, Platform: AllPlatforms[i], Status: st,
		}).Error)
	}

	summary, err := svc.StatusSummary(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 2, summary[StatusPublished])
	require.Equal(t, 1, summary[StatusFailed])
	require.Equal(t, 1, summary[StatusPending])
}

func TestBuildCaption(t *testing.T) {
	caption := BuildCaption(&TaskSnapshot{
		TaskID:   1,
		Language: "en",
		Topic:    "Python",
		Subtopic: "list comprehensions",
		Question: "What will this print?",
	}, "https://t.me/example_bot")

	require.Contains(t, caption, "What will this print?")
	require.Contains(t, caption, "Answer and explanation: https://t.me/example_bot")
	require.Contains(t, caption, "#python")
	require.Contains(t, caption, "#listcomprehensions")
}
