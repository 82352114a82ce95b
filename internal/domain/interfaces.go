package domain

import (
	"context"
	"time"
)

// GeneratedDraft — результат работы генератора до сохранения в БД.
type GeneratedDraft struct {
	Title       string
	ContentHTML string
	Summary     string
	Specs       *CarSpecs
	Tags        []string
}

// Generator строит статью из нормализованного элемента источника.
type Generator interface {
	Generate(ctx context.Context, item RawItem, feed SourceFeed) (GeneratedDraft, error)
	ExtractSpecs(ctx context.Context, text string) (*CarSpecs, error)
}

// DraftRepo управляет черновиками.
type DraftRepo interface {
	CreateDraft(ctx context.Context, draft PendingDraft) (PendingDraft, error)
	GetDraft(ctx context.Context, id int64) (PendingDraft, error)
	// ListEligiblePending возвращает pending-черновики с назначенной оценкой,
	// старые первыми. Порядок оценивания — явный контракт движка.
	ListEligiblePending(ctx context.Context, limit int) ([]PendingDraft, error)
	ListUnscoredPending(ctx context.Context, limit int) ([]PendingDraft, error)
	ListPendingWithoutSpecs(ctx context.Context, limit int) ([]PendingDraft, error)
	// HasActiveDuplicate проверяет совпадение по хэшу контента, video_id или URL
	// среди неотклонённых черновиков и статей.
	HasActiveDuplicate(ctx context.Context, item RawItem) (bool, error)
	MarkPublished(ctx context.Context, id int64, auto bool) error
	SetQualityScore(ctx context.Context, id int64, score int) error
	SetSpecs(ctx context.Context, id int64, specs *CarSpecs) error
	// RecordPublishFailure увеличивает счётчик попыток и переводит черновик
	// в auto_failed, когда попытки исчерпаны. Возвращает новое число попыток
	// и признак окончательного отказа.
	RecordPublishFailure(ctx context.Context, id int64, lastError string, at time.Time, maxAttempts int) (int, bool, error)
}

// ArticleRepo управляет опубликованными статьями.
type ArticleRepo interface {
	// CreateArticle сохраняет статью вместе со спеками и привязкой
	// существующих тегов в одной транзакции.
	CreateArticle(ctx context.Context, article Article, specs *CarSpecs, tags []string) (Article, error)
	SlugTaken(ctx context.Context, slug string) (bool, error)
	HasActiveByHash(ctx context.Context, contentHash string) (bool, error)
}

// FeedRepo управляет источниками.
type FeedRepo interface {
	GetFeed(ctx context.Context, id int64) (SourceFeed, error)
}

// SettingsRepo управляет единственной строкой настроек, счётчиками и
// блокировками задач. Все мутации — одиночные условные UPDATE.
type SettingsRepo interface {
	// GetSettings возвращает настройки, предварительно сбросив дневные
	// счётчики, если календарная дата ушла вперёд. Сброс атомарен и
	// выполняется не более одного раза в день.
	GetSettings(ctx context.Context, today time.Time) (AutomationSettings, error)
	// IncrementTodayCount увеличивает дневной счётчик, если лимит не
	// исчерпан. Возвращает false при достигнутом лимите.
	IncrementTodayCount(ctx context.Context, today time.Time) (bool, error)
	// AcquireTaskLock захватывает блокировку задачи, если она свободна или
	// протухла. Один условный UPDATE, без read-then-write.
	AcquireTaskLock(ctx context.Context, task TaskType, now time.Time, staleAfter time.Duration) (bool, error)
	ReleaseTaskLock(ctx context.Context, task TaskType) error
	TaskLocked(ctx context.Context, task TaskType, now time.Time, staleAfter time.Duration) (bool, error)
}

// LogFilter задаёт фильтры чтения журнала решений.
type LogFilter struct {
	Decision Decision
	FeedName string
	Limit    int
}

// DecisionLogRepo — журнал решений, только добавление.
type DecisionLogRepo interface {
	Append(ctx context.Context, entry AutoPublishLog) (AutoPublishLog, error)
	// CountLimitedSince считает решения published/drafted начиная с момента —
	// источник истины для часового лимита.
	CountLimitedSince(ctx context.Context, since time.Time) (int, error)
	// AnnotateReview дописывает время и заметки ревью к записи drafted.
	// Само решение не изменяется.
	AnnotateReview(ctx context.Context, id int64, reviewTimeSec int, notes string) error
	List(ctx context.Context, filter LogFilter) ([]AutoPublishLog, error)
	Stats(ctx context.Context, recent int) (DecisionStats, error)
}

// ImageStore сохраняет изображения и сообщает, принадлежит ли URL хранилищу.
type ImageStore interface {
	SaveImage(ctx context.Context, data []byte, filename string) (string, error)
	Owns(url string) bool
}

// Cache используется для TTL-хранилищ и инвалидации списков.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
	Delete(keys ...string) error
}
