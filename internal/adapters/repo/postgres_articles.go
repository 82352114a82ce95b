package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/infra/metrics"
)

// CreateArticle сохраняет статью, спеки и привязку существующих тегов
// в одной транзакции. Новые теги из спеков не создаются.
func (p *Postgres) CreateArticle(ctx context.Context, article domain.Article, specs *domain.CarSpecs, tags []string) (domain.Article, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "articles", start, err)
	if err != nil {
		return domain.Article{}, err
	}
	defer tx.Rollback(ctx)

	var feedID any
	if article.FeedID != 0 {
		feedID = article.FeedID
	}

	start = time.Now()
	var publishedAt sql.NullTime
	err = tx.QueryRow(ctx, `
INSERT INTO articles (slug, title, summary, content_html, image_url, feed_id, content_hash, source_url, is_published, published_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CASE WHEN $9 THEN now() ELSE NULL END)
RETURNING id, published_at, created_at
`, article.Slug, article.Title, article.Summary, article.ContentHTML, article.ImageURL, feedID,
		article.ContentHash, article.SourceURL, article.IsPublished).
		Scan(&article.ID, &publishedAt, &article.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "articles_insert", "articles", start, err)
	if err != nil {
		return domain.Article{}, err
	}
	if publishedAt.Valid {
		ts := publishedAt.Time
		article.PublishedAt = &ts
	}

	if specs != nil && !specs.Empty() {
		var extraJSON []byte
		if len(specs.Extra) > 0 {
			extraJSON, err = json.Marshal(specs.Extra)
			if err != nil {
				return domain.Article{}, fmt.Errorf("упаковка extra: %w", err)
			}
		}
		start = time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO article_specs (article_id, make, model, year, engine, horsepower, torque, transmission, drivetrain, acceleration, top_speed, price, extra)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`, article.ID, specs.Make, specs.Model, specs.Year, specs.Engine, specs.Horsepower, specs.Torque,
			specs.Transmission, specs.Drivetrain, specs.Acceleration, specs.TopSpeed, specs.Price, extraJSON)
		metrics.ObserveNetworkRequest("postgres", "article_specs_insert", "article_specs", start, err)
		if err != nil {
			return domain.Article{}, err
		}
	}

	if len(tags) > 0 {
		lowered := make([]string, 0, len(tags))
		for _, t := range tags {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				lowered = append(lowered, t)
			}
		}
		if len(lowered) > 0 {
			start = time.Now()
			_, err = tx.Exec(ctx, `
INSERT INTO article_tags (article_id, tag_id)
SELECT $1, t.id FROM tags t WHERE lower(t.name) = ANY($2)
ON CONFLICT DO NOTHING
`, article.ID, lowered)
			metrics.ObserveNetworkRequest("postgres", "article_tags_insert", "article_tags", start, err)
			if err != nil {
				return domain.Article{}, err
			}
		}
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "articles", start, err)
	if err != nil {
		return domain.Article{}, err
	}
	return article, nil
}

// SlugTaken проверяет занятость слага среди неудалённых статей.
// Слаг удалённой статьи можно переиспользовать.
func (p *Postgres) SlugTaken(ctx context.Context, slug string) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var taken bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM articles WHERE slug=$1 AND NOT is_deleted)
`, slug).Scan(&taken)
	metrics.ObserveNetworkRequest("postgres", "articles_slug_taken", "articles", start, err)
	return taken, err
}

// HasActiveByHash проверяет наличие неудалённой статьи с таким хэшем контента.
func (p *Postgres) HasActiveByHash(ctx context.Context, contentHash string) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var exists bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM articles WHERE content_hash=$1 AND NOT is_deleted)
`, contentHash).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "articles_by_hash", "articles", start, err)
	return exists, err
}

// GetFeed возвращает ленту по идентификатору.
func (p *Postgres) GetFeed(ctx context.Context, id int64) (domain.SourceFeed, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var (
		feed       domain.SourceFeed
		checksJSON []byte
	)
	err := p.pool.QueryRow(ctx, `
SELECT id, name, kind, url, category_name, license_status, safety_checks, image_policy, is_active, created_at
FROM source_feeds WHERE id=$1
`, id).Scan(&feed.ID, &feed.Name, &feed.Kind, &feed.URL, &feed.CategoryName, &feed.LicenseStatus,
		&checksJSON, &feed.ImagePolicy, &feed.IsActive, &feed.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "feeds_get", "source_feeds", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SourceFeed{}, domain.ErrFeedNotFound
	}
	if err != nil {
		return domain.SourceFeed{}, err
	}
	if len(checksJSON) > 0 {
		if err := json.Unmarshal(checksJSON, &feed.SafetyChecks); err != nil {
			return domain.SourceFeed{}, fmt.Errorf("распаковка safety_checks: %w", err)
		}
	}
	return feed, nil
}
