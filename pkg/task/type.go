package task

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

const (
	PipelineStartTask   = "pipeline:start"
	RenderImageTask     = "media:render_image"
	GenerateVideoTask   = "media:generate_video"
	PublishTelegramTask = "telegram:publish"
	FanOutTask          = "social:fan_out"
	PublishPostTask     = "social:publish_post"
)

// PipelinePayload carries the quiz task identity through every pipeline
// stage. Stages re-read the row, so the payload stays minimal.
type PipelinePayload struct {
	TaskID int64 `json:"task_id"`
}

// PublishPostPayload addresses one social_media_posts row. The claim token
// travels with re-enqueued retries so the owning worker can keep the row
// through consecutive attempts.
type PublishPostPayload struct {
	PostID     int64  `json:"post_id"`
	ClaimToken string `json:"claim_token,omitempty"`
}
