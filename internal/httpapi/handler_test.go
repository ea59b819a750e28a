package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codequiz-publisher/services/social"
	"codequiz-publisher/services/testutil"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type nopEnqueuer struct{}

func (nopEnqueuer) Enqueue(_ context.Context, t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{ID: "test", Type: t.Type()}, nil
}

func newTestRouter(t *testing.T, secret string) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t, social.Models()...)
	svc := social.NewService(social.ServiceParams{DB: db, Enqueuer: nopEnqueuer{}})

	h := &Handler{social: svc, webhookSecret: secret}
	engine := gin.New()
	h.Register(engine)
	return engine, db
}

func TestTelegramWebhookSecretValidation(t *testing.T) {
	router, _ := newTestRouter(t, "s3cret")

	body := []byte(`{"update_id":1}`)

	// wrong secret
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram", bytes.NewReader(body))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// missing secret
	req = httptest.NewRequest(http.MethodPost, "/webhooks/telegram", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// correct secret
	req = httptest.NewRequest(http.MethodPost, "/webhooks/telegram", bytes.NewReader(body))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSocialCallbackResolvesPost(t *testing.T) {
	router, db := newTestRouter(t, "")

	token := "tok"
	now := time.Now()
	require.NoError(t, db.Create(&social.SocialMediaPost{
		TaskID: 9, Platform: social.Instagram, Status: social.StatusProcessing,
		ClaimToken: &token, ClaimedAt: &now,
	}).Error)

	body := []byte(`{"task_id":9,"platform":"instagram","success":true,"post_url":"https://www.instagram.com/p/x/"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/social/callback", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got social.SocialMediaPost
	require.NoError(t, db.Where("task_id = ?", 9).First(&got).Error)
	require.Equal(t, social.StatusPublished, got.Status)
}

func TestSocialCallbackValidation(t *testing.T) {
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/social/callback",
		bytes.NewReader([]byte(`{"success":true}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, "")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
