package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/infra/metrics"
)

// Postgres реализует репозитории конвейера на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.DraftRepo       = (*Postgres)(nil)
	_ domain.ArticleRepo     = (*Postgres)(nil)
	_ domain.FeedRepo        = (*Postgres)(nil)
	_ domain.SettingsRepo    = (*Postgres)(nil)
	_ domain.DecisionLogRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const draftColumns = `id, feed_id, video_id, source_url, content_hash, title, content_html, summary, status,
quality_score, auto_publish_attempts, auto_publish_last_error, auto_publish_last_attempt,
images, image_source, specs, tags, is_auto_published, created_at, updated_at`

func scanDraft(row pgx.Row) (domain.PendingDraft, error) {
	var (
		d           domain.PendingDraft
		feedID      sql.NullInt64
		lastAttempt sql.NullTime
		imagesJSON  []byte
		specsJSON   []byte
		tagsJSON    []byte
	)
	err := row.Scan(&d.ID, &feedID, &d.VideoID, &d.SourceURL, &d.ContentHash, &d.Title, &d.ContentHTML,
		&d.Summary, &d.Status, &d.QualityScore, &d.AutoPublishAttempts, &d.AutoPublishLastError,
		&lastAttempt, &imagesJSON, &d.ImageSource, &specsJSON, &tagsJSON, &d.IsAutoPublished,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return domain.PendingDraft{}, err
	}
	if feedID.Valid {
		d.FeedID = feedID.Int64
	}
	if lastAttempt.Valid {
		ts := lastAttempt.Time
		d.AutoPublishLastAttempt = &ts
	}
	if len(imagesJSON) > 0 {
		if err := json.Unmarshal(imagesJSON, &d.Images); err != nil {
			return domain.PendingDraft{}, fmt.Errorf("распаковка images: %w", err)
		}
	}
	if len(specsJSON) > 0 {
		var specs domain.CarSpecs
		if err := json.Unmarshal(specsJSON, &specs); err != nil {
			return domain.PendingDraft{}, fmt.Errorf("распаковка specs: %w", err)
		}
		d.Specs = &specs
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &d.Tags); err != nil {
			return domain.PendingDraft{}, fmt.Errorf("распаковка tags: %w", err)
		}
	}
	return d, nil
}

func marshalDraftJSON(d domain.PendingDraft) (images, specs, tags []byte, err error) {
	if d.Images == nil {
		d.Images = []string{}
	}
	images, err = json.Marshal(d.Images)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("упаковка images: %w", err)
	}
	if d.Specs != nil {
		specs, err = json.Marshal(d.Specs)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("упаковка specs: %w", err)
		}
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	tags, err = json.Marshal(d.Tags)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("упаковка tags: %w", err)
	}
	return images, specs, tags, nil
}

// CreateDraft сохраняет новый черновик. Частичный уникальный индекс по
// video_id закрывает гонку между проверкой дубликата и вставкой.
func (p *Postgres) CreateDraft(ctx context.Context, draft domain.PendingDraft) (domain.PendingDraft, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	imagesJSON, specsJSON, tagsJSON, err := marshalDraftJSON(draft)
	if err != nil {
		return domain.PendingDraft{}, err
	}
	if draft.Status == "" {
		draft.Status = domain.DraftPending
	}
	if draft.ImageSource == "" {
		draft.ImageSource = domain.ImageNone
	}

	var feedID any
	if draft.FeedID != 0 {
		feedID = draft.FeedID
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO pending_articles (feed_id, video_id, source_url, content_hash, title, content_html, summary, status,
quality_score, images, image_source, specs, tags)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING `+draftColumns+`
`, feedID, draft.VideoID, draft.SourceURL, draft.ContentHash, draft.Title, draft.ContentHTML,
		draft.Summary, draft.Status, draft.QualityScore, imagesJSON, draft.ImageSource, specsJSON, tagsJSON)
	created, err := scanDraft(row)
	metrics.ObserveNetworkRequest("postgres", "drafts_insert", "pending_articles", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.PendingDraft{}, domain.ErrDuplicateItem
		}
		return domain.PendingDraft{}, err
	}
	return created, nil
}

// GetDraft возвращает черновик по идентификатору.
func (p *Postgres) GetDraft(ctx context.Context, id int64) (domain.PendingDraft, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+draftColumns+` FROM pending_articles WHERE id=$1`, id)
	draft, err := scanDraft(row)
	metrics.ObserveNetworkRequest("postgres", "drafts_get", "pending_articles", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PendingDraft{}, domain.ErrDraftNotFound
	}
	return draft, err
}

func (p *Postgres) listDrafts(ctx context.Context, query string, args ...any) ([]domain.PendingDraft, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drafts []domain.PendingDraft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// ListEligiblePending возвращает оценённые pending-черновики, старые первыми.
func (p *Postgres) ListEligiblePending(ctx context.Context, limit int) ([]domain.PendingDraft, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	drafts, err := p.listDrafts(ctx, `
SELECT `+draftColumns+` FROM pending_articles
WHERE status='pending' AND quality_score > 0
ORDER BY created_at ASC, id ASC
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "drafts_list_eligible", "pending_articles", start, err)
	return drafts, err
}

// ListUnscoredPending возвращает pending-черновики без оценки.
func (p *Postgres) ListUnscoredPending(ctx context.Context, limit int) ([]domain.PendingDraft, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	drafts, err := p.listDrafts(ctx, `
SELECT `+draftColumns+` FROM pending_articles
WHERE status='pending' AND quality_score = 0
ORDER BY created_at ASC, id ASC
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "drafts_list_unscored", "pending_articles", start, err)
	return drafts, err
}

// ListPendingWithoutSpecs возвращает pending-черновики без извлечённых спеков.
func (p *Postgres) ListPendingWithoutSpecs(ctx context.Context, limit int) ([]domain.PendingDraft, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	drafts, err := p.listDrafts(ctx, `
SELECT `+draftColumns+` FROM pending_articles
WHERE status='pending' AND specs IS NULL
ORDER BY created_at ASC, id ASC
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "drafts_list_no_specs", "pending_articles", start, err)
	return drafts, err
}

// HasActiveDuplicate проверяет элемент на дубликат среди неотклонённых
// черновиков и неудалённых статей. Отклонённые черновики можно перегенерировать.
func (p *Postgres) HasActiveDuplicate(ctx context.Context, item domain.RawItem) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	videoID := ""
	sourceURL := ""
	switch item.SourceKind {
	case domain.SourceYouTube:
		videoID = item.SourceRef
	case domain.SourceRSS:
		sourceURL = item.SourceRef
	}

	start := time.Now()
	var exists bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM pending_articles
	WHERE status <> 'rejected'
	  AND (content_hash = $1
	       OR ($2 <> '' AND video_id = $2)
	       OR ($3 <> '' AND source_url = $3))
) OR EXISTS (
	SELECT 1 FROM articles
	WHERE NOT is_deleted
	  AND (content_hash = $1 OR ($3 <> '' AND source_url = $3))
)
`, item.ContentHash, videoID, sourceURL).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "drafts_dedup_check", "pending_articles", start, err)
	return exists, err
}

// MarkPublished переводит черновик в published.
func (p *Postgres) MarkPublished(ctx context.Context, id int64, auto bool) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE pending_articles
SET status='published', is_auto_published=$2, updated_at=now()
WHERE id=$1
`, id, auto)
	metrics.ObserveNetworkRequest("postgres", "drafts_mark_published", "pending_articles", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrDraftNotFound
	}
	return nil
}

// SetQualityScore назначает оценку качества.
func (p *Postgres) SetQualityScore(ctx context.Context, id int64, score int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE pending_articles SET quality_score=$2, updated_at=now() WHERE id=$1
`, id, score)
	metrics.ObserveNetworkRequest("postgres", "drafts_set_score", "pending_articles", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrDraftNotFound
	}
	return nil
}

// SetSpecs сохраняет извлечённые характеристики черновика.
func (p *Postgres) SetSpecs(ctx context.Context, id int64, specs *domain.CarSpecs) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var specsJSON []byte
	if specs != nil {
		var err error
		specsJSON, err = json.Marshal(specs)
		if err != nil {
			return fmt.Errorf("упаковка specs: %w", err)
		}
	}

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE pending_articles SET specs=$2, updated_at=now() WHERE id=$1
`, id, specsJSON)
	metrics.ObserveNetworkRequest("postgres", "drafts_set_specs", "pending_articles", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrDraftNotFound
	}
	return nil
}

// RecordPublishFailure фиксирует неудачную материализацию одним UPDATE:
// счётчик попыток, последняя ошибка и перевод в auto_failed при исчерпании.
func (p *Postgres) RecordPublishFailure(ctx context.Context, id int64, lastError string, at time.Time, maxAttempts int) (int, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var (
		attempts int
		status   domain.DraftStatus
	)
	err := p.pool.QueryRow(ctx, `
UPDATE pending_articles
SET auto_publish_attempts = auto_publish_attempts + 1,
    auto_publish_last_error = $2,
    auto_publish_last_attempt = $3,
    status = CASE WHEN auto_publish_attempts + 1 >= $4 THEN 'auto_failed' ELSE status END,
    updated_at = now()
WHERE id = $1
RETURNING auto_publish_attempts, status
`, id, lastError, at, maxAttempts).Scan(&attempts, &status)
	metrics.ObserveNetworkRequest("postgres", "drafts_record_failure", "pending_articles", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, domain.ErrDraftNotFound
	}
	if err != nil {
		return 0, false, err
	}
	return attempts, status == domain.DraftAutoFailed, nil
}
