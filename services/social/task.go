package social

import (
	"context"
	"encoding/json"
	"fmt"

	"codequiz-publisher/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// TaskLoader resolves a quiz task into the snapshot the dispatcher needs.
// The pipeline package provides the implementation; keeping it behind an
// interface keeps this package off the tasks table.
type TaskLoader interface {
	LoadTaskSnapshot(ctx context.Context, taskID int64) (*TaskSnapshot, error)
}

type Handler struct {
	dispatcher *Dispatcher
	loader     TaskLoader
}

type HandlerParams struct {
	fx.In

	Dispatcher *Dispatcher
	Loader     TaskLoader
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{dispatcher: p.Dispatcher, loader: p.Loader}
}

// HandleFanOutTask creates the per-platform rows for a freshly published
// quiz task.
func (h *Handler) HandleFanOutTask(ctx context.Context, t *asynq.Task) error {
	var payload task.PipelinePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal fan-out payload: %w", err)
	}

	snap, err := h.loader.LoadTaskSnapshot(ctx, payload.TaskID)
	if err != nil {
		return fmt.Errorf("load task %d: %w", payload.TaskID, err)
	}
	return h.dispatcher.FanOut(ctx, snap)
}

// HandlePublishPostTask claims one post row and runs a single publication
// attempt. A lost claim is not an error: another worker owns the row or it
// already finished.
func (h *Handler) HandlePublishPostTask(ctx context.Context, t *asynq.Task) error {
	var payload task.PublishPostPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal publish payload: %w", err)
	}

	post, token, err := h.dispatcher.Claim(ctx, payload.PostID, payload.ClaimToken)
	if err != nil {
		if IsAlreadyClaimed(err) {
			zap.L().Debug("publish job skipped, row not claimable",
				zap.Int64("post_id", payload.PostID))
			return nil
		}
		return fmt.Errorf("claim post %d: %w", payload.PostID, err)
	}

	snap, err := h.loader.LoadTaskSnapshot(ctx, post.TaskID)
	if err != nil {
		return fmt.Errorf("load task %d: %w", post.TaskID, err)
	}
	return h.dispatcher.Publish(ctx, post, snap, token)
}

func registerHandlers(mux *asynq.ServeMux, h *Handler) {
	mux.HandleFunc(task.FanOutTask, h.HandleFanOutTask)
	mux.HandleFunc(task.PublishPostTask, h.HandlePublishPostTask)
}
