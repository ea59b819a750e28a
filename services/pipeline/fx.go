package pipeline

import (
	"codequiz-publisher/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("service.pipeline",
	fx.Provide(
		NewController,
		NewTaskLoader,
	),
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, c *Controller) {
	mux.HandleFunc(task.PipelineStartTask, c.HandleStart)
	mux.HandleFunc(task.RenderImageTask, c.HandleRenderImage)
	mux.HandleFunc(task.GenerateVideoTask, c.HandleGenerateVideo)
	mux.HandleFunc(task.PublishTelegramTask, c.HandlePublishTelegram)
}
