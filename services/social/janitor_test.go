package social

import (
	"context"
	"testing"
	"time"

	"codequiz-publisher/services/testutil"

	"github.com/stretchr/testify/require"
)

func TestJanitorRecoversStrandedRows(t *testing.T) {
	db := testutil.NewTestDB(t, Models()...)
	enq := &fakeEnqueuer{}
	j := &Janitor{
		db: db, enqueuer: enq,
		supervisor: NewBrowserSupervisor(),
		threshold:  15 * time.Minute,
	}
	ctx := context.Background()

	staleAt := time.Now().Add(-time.Hour)
	freshAt := time.Now()
	token := "dead-worker"
	require.NoError(t, db.Create(&SocialMediaPost{
		TaskID: 1, Platform: Instagram, Status: StatusProcessing,
		ClaimToken: &token, ClaimedAt: &staleAt,
	}).Error)
	require.NoError(t, db.Create(&SocialMediaPost{
		TaskID: 1, Platform: TikTok, Status: StatusProcessing,
		ClaimToken: &token, ClaimedAt: &freshAt,
	}).Error)
	require.NoError(t, db.Create(&SocialMediaPost{
		TaskID: 1, Platform: Twitter, Status: StatusFailed,
	}).Error)

	require.NoError(t, j.Sweep(ctx))

	var recovered SocialMediaPost
	require.NoError(t, db.Where("platform = ?", Instagram).First(&recovered).Error)
	require.Equal(t, StatusPending, recovered.Status)
	require.Nil(t, recovered.ClaimToken)

	var fresh SocialMediaPost
	require.NoError(t, db.Where("platform = ?", TikTok).First(&fresh).Error)
	require.Equal(t, StatusProcessing, fresh.Status)

	var failed SocialMediaPost
	require.NoError(t, db.Where("platform = ?", Twitter).First(&failed).Error)
	require.Equal(t, StatusFailed, failed.Status)

	require.Len(t, enq.tasks, 1)
	require.Equal(t, "social:publish_post", enq.tasks[0].Type())
}

func TestJanitorSweepIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t, Models()...)
	enq := &fakeEnqueuer{}
	j := &Janitor{
		db: db, enqueuer: enq,
		supervisor: NewBrowserSupervisor(),
		threshold:  15 * time.Minute,
	}
	ctx := context.Background()

	staleAt := time.Now().Add(-time.Hour)
	token := "dead-worker"
	require.NoError(t, db.Create(&SocialMediaPost{
		TaskID: 2, Platform: Pinterest, Status: StatusProcessing,
		ClaimToken: &token, ClaimedAt: &staleAt,
	}).Error)

	require.NoError(t, j.Sweep(ctx))
	require.NoError(t, j.Sweep(ctx))
	require.Len(t, enq.tasks, 1)
}

func TestSupervisorReapsOldBrowsers(t *testing.T) {
	s := NewBrowserSupervisor()

	oldCancelled := false
	id := s.register(func() { oldCancelled = true })
	s.mu.Lock()
	e := s.entries[id]
	e.started = time.Now().Add(-time.Hour)
	s.entries[id] = e
	s.mu.Unlock()

	freshCancelled := false
	s.register(func() { freshCancelled = true })

	require.Equal(t, 1, s.Reap(15*time.Minute))
	require.True(t, oldCancelled)
	require.False(t, freshCancelled)

	// reaped entries are gone
	require.Equal(t, 0, s.Reap(15*time.Minute))
}
