package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/infra/metrics"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const logColumns = `id, draft_id, article_id, decision, quality_score, safety_score, image_policy,
feed_name, source_type, content_length, has_image, has_specs, tag_count, category_name,
source_is_youtube, error, review_time_seconds, reviewer_notes, created_at`

func scanLogEntry(row pgx.Row) (domain.AutoPublishLog, error) {
	var (
		entry     domain.AutoPublishLog
		articleID sql.NullInt64
		reviewSec sql.NullInt64
	)
	err := row.Scan(&entry.ID, &entry.DraftID, &articleID, &entry.Decision, &entry.QualityScore,
		&entry.SafetyScore, &entry.ImagePolicy, &entry.FeedName, &entry.SourceType,
		&entry.ContentLength, &entry.HasImage, &entry.HasSpecs, &entry.TagCount,
		&entry.CategoryName, &entry.SourceIsYouTube, &entry.Error, &reviewSec,
		&entry.ReviewerNotes, &entry.CreatedAt)
	if err != nil {
		return domain.AutoPublishLog{}, err
	}
	if articleID.Valid {
		id := articleID.Int64
		entry.ArticleID = &id
	}
	if reviewSec.Valid {
		v := int(reviewSec.Int64)
		entry.ReviewTimeSec = &v
	}
	return entry, nil
}

// Append добавляет запись решения. Журнал только растёт: путь обновления
// есть лишь у полей аннотации ревью.
func (p *Postgres) Append(ctx context.Context, entry domain.AutoPublishLog) (domain.AutoPublishLog, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var articleID any
	if entry.ArticleID != nil {
		articleID = *entry.ArticleID
	}

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO auto_publish_log (draft_id, article_id, decision, quality_score, safety_score, image_policy,
feed_name, source_type, content_length, has_image, has_specs, tag_count, category_name,
source_is_youtube, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING id, created_at
`, entry.DraftID, articleID, entry.Decision, entry.QualityScore, entry.SafetyScore, entry.ImagePolicy,
		entry.FeedName, entry.SourceType, entry.ContentLength, entry.HasImage, entry.HasSpecs,
		entry.TagCount, entry.CategoryName, entry.SourceIsYouTube, entry.Error).
		Scan(&entry.ID, &entry.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "log_append", "auto_publish_log", start, err)
	return entry, err
}

// CountLimitedSince считает решения, расходующие лимит, начиная с момента.
// Источник истины для скользящего часового лимита.
func (p *Postgres) CountLimitedSince(ctx context.Context, since time.Time) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var count int
	err := p.pool.QueryRow(ctx, `
SELECT count(*) FROM auto_publish_log
WHERE decision IN ('published', 'drafted') AND created_at >= $1
`, since).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "log_count_limited", "auto_publish_log", start, err)
	return count, err
}

// AnnotateReview дописывает итоги ручного ревью. Решение не меняется.
func (p *Postgres) AnnotateReview(ctx context.Context, id int64, reviewTimeSec int, notes string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE auto_publish_log SET review_time_seconds=$2, reviewer_notes=$3 WHERE id=$1
`, id, reviewTimeSec, notes)
	metrics.ObserveNetworkRequest("postgres", "log_annotate", "auto_publish_log", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// List возвращает записи журнала с необязательными фильтрами.
func (p *Postgres) List(ctx context.Context, filter domain.LogFilter) ([]domain.AutoPublishLog, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	builder := psql.Select(logColumns).From("auto_publish_log").OrderBy("created_at DESC", "id DESC")
	if filter.Decision != "" {
		builder = builder.Where(sq.Eq{"decision": string(filter.Decision)})
	}
	if filter.FeedName != "" {
		builder = builder.Where(sq.Eq{"feed_name": filter.FeedName})
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	builder = builder.Limit(uint64(limit))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "log_list", "auto_publish_log", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AutoPublishLog
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats собирает агрегаты для операционной панели: решения по типам,
// pending-черновики по классу безопасности ленты и последние записи.
func (p *Postgres) Stats(ctx context.Context, recent int) (domain.DecisionStats, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	stats := domain.DecisionStats{
		ByDecision:      make(map[domain.Decision]int),
		PendingBySafety: make(map[domain.Safety]int),
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT decision, count(*) FROM auto_publish_log GROUP BY decision
`)
	metrics.ObserveNetworkRequest("postgres", "log_stats_decisions", "auto_publish_log", start, err)
	if err != nil {
		return domain.DecisionStats{}, err
	}
	for rows.Next() {
		var (
			decision domain.Decision
			count    int
		)
		if err := rows.Scan(&decision, &count); err != nil {
			rows.Close()
			return domain.DecisionStats{}, err
		}
		stats.ByDecision[decision] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.DecisionStats{}, err
	}

	start = time.Now()
	rows, err = p.pool.Query(ctx, `
SELECT f.license_status, f.safety_checks, count(*)
FROM pending_articles p
JOIN source_feeds f ON f.id = p.feed_id
WHERE p.status = 'pending'
GROUP BY f.license_status, f.safety_checks
`)
	metrics.ObserveNetworkRequest("postgres", "log_stats_safety", "auto_publish_log", start, err)
	if err != nil {
		return domain.DecisionStats{}, err
	}
	for rows.Next() {
		var (
			license    domain.LicenseStatus
			checksJSON []byte
			count      int
		)
		if err := rows.Scan(&license, &checksJSON, &count); err != nil {
			rows.Close()
			return domain.DecisionStats{}, err
		}
		feed := domain.SourceFeed{LicenseStatus: license}
		if len(checksJSON) > 0 {
			_ = json.Unmarshal(checksJSON, &feed.SafetyChecks)
		}
		stats.PendingBySafety[feed.Safety()] += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.DecisionStats{}, err
	}

	if recent > 0 {
		entries, err := p.List(ctx, domain.LogFilter{Limit: recent})
		if err != nil {
			return domain.DecisionStats{}, err
		}
		stats.Recent = entries
	}
	return stats, nil
}
