package rediskey

import "fmt"

// Derived-media URL keys (advisory cache, 24h TTL)
const (
	TaskImageURLPrefix = "task:image_url"
	TaskVideoURLPrefix = "task:video_url"
)

func NamespaceKey(namespace string, key int64) string {
	return fmt.Sprintf("%s:%d", namespace, key)
}

// BuildTaskImageURLKey returns "task:image_url:{taskID}"
func BuildTaskImageURLKey(taskID int64) string {
	return NamespaceKey(TaskImageURLPrefix, taskID)
}

// BuildTaskVideoURLKey returns "task:video_url:{taskID}"
func BuildTaskVideoURLKey(taskID int64) string {
	return NamespaceKey(TaskVideoURLPrefix, taskID)
}
