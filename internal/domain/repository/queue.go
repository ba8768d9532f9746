package repository

import (
	"context"

	"github.com/google/uuid"
)

// PipelineTask represents a video transcoding job message.
type PipelineTask struct {
	VideoID   uuid.UUID `json:"video_id"`
	SourceKey string    `json:"source_key"` // storage key of the original blob
	HLSPrefix string    `json:"hls_prefix"` // storage key prefix for HLS output
}

// MessageQueue defines the interface for message queue operations.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type MessageQueue interface {
	// PublishPipelineTask sends a transcoding task to the queue.
	// Used by the API server to trigger async video processing.
	PublishPipelineTask(ctx context.Context, task PipelineTask) error

	// ConsumePipelineTasks starts consuming transcoding tasks from the queue.
	// The handler function is called for each received task; a handler error
	// drops the message without requeue (failed videos are not retried).
	// Blocks until the context is cancelled or the channel closes.
	ConsumePipelineTasks(ctx context.Context, handler func(task PipelineTask) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
