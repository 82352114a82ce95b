package domain

import (
	"context"
	"time"
)

// TaskType описывает тип фоновой задачи конвейера.
type TaskType string

const (
	// TaskRSS — обработка накопленных RSS-элементов.
	TaskRSS TaskType = "rss"
	// TaskYouTube — обработка накопленных YouTube-элементов.
	TaskYouTube TaskType = "youtube"
	// TaskAutoPublish — проход движка автопубликации по pending-черновикам.
	TaskAutoPublish TaskType = "auto-publish"
	// TaskScore — оценка черновиков без назначенного quality score.
	TaskScore TaskType = "score"
	// TaskDeepSpecs — дозаполнение характеристик у черновиков без спеков.
	TaskDeepSpecs TaskType = "deep-specs"
)

// KnownTask сообщает, поддерживается ли тип задачи.
func KnownTask(t TaskType) bool {
	switch t {
	case TaskRSS, TaskYouTube, TaskAutoPublish, TaskScore, TaskDeepSpecs:
		return true
	}
	return false
}

// JobCause описывает источник запуска задачи.
type JobCause string

const (
	// JobCauseManual — задача запущена вручную через API.
	JobCauseManual JobCause = "manual"
	// JobCauseScheduled — задача запущена планировщиком.
	JobCauseScheduled JobCause = "scheduled"
)

// PipelineJob — задача конвейера в очереди.
type PipelineJob struct {
	ID          string    `json:"job_id,omitempty"`
	Task        TaskType  `json:"task"`
	Cause       JobCause  `json:"cause"`
	RequestedAt time.Time `json:"requested_at"`
}

// SourceItemPayload — уже распарсенный элемент источника, как его отдают
// внешние сканеры. Механика скрейпинга вне ядра.
type SourceItemPayload struct {
	Kind         SourceKind `json:"kind"`
	FeedID       int64      `json:"feed_id"`
	VideoID      string     `json:"video_id,omitempty"`
	URL          string     `json:"url,omitempty"`
	Title        string     `json:"title"`
	BodyHTML     string     `json:"body_html,omitempty"`
	Transcript   string     `json:"transcript,omitempty"`
	Description  string     `json:"description,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	ImageURL     string     `json:"image_url,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}

// JobAckFunc подтверждает успешную обработку или запрашивает повтор доставки.
type JobAckFunc func(success bool) error

// JobQueue — очередь задач конвейера.
type JobQueue interface {
	Enqueue(ctx context.Context, job PipelineJob) error
	Receive(ctx context.Context) (PipelineJob, JobAckFunc, error)
}

// ItemInbox отдаёт накопленные внешними сканерами элементы источников.
type ItemInbox interface {
	ReadBatch(ctx context.Context, kind SourceKind, max int) ([]SourceItemPayload, error)
}
