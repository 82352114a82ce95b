package publish

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/infra/metrics"
)

// ImageFetcher скачивает изображение с проверкой, что это изображение.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// SideEffects — адреса внешних пингов после публикации. Все необязательны.
type SideEffects struct {
	RevalidateURL  string
	SearchIndexURL string
	CacheKeys      []string
}

// Service материализует одобренный черновик в статью.
type Service struct {
	articles domain.ArticleRepo
	fetcher  ImageFetcher
	store    domain.ImageStore
	cache    domain.Cache
	effects  SideEffects
	http     *http.Client
	log      zerolog.Logger
}

// NewService создаёт паблишер.
func NewService(articles domain.ArticleRepo, fetcher ImageFetcher, store domain.ImageStore, cache domain.Cache, effects SideEffects, logger zerolog.Logger) *Service {
	return &Service{
		articles: articles,
		fetcher:  fetcher,
		store:    store,
		cache:    cache,
		effects:  effects,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      logger,
	}
}

// Publish создаёт статью из черновика: уникальный слаг, изображение,
// спеки и теги. При asDraft статья создаётся неопубликованной и ждёт
// подтверждения человеком. Ошибки заворачиваются в PublishError.
func (s *Service) Publish(ctx context.Context, draft domain.PendingDraft, asDraft bool) (domain.Article, error) {
	slug, err := s.uniqueSlug(ctx, draft.Title)
	if err != nil {
		return domain.Article{}, &domain.PublishError{Stage: "slug", Err: err}
	}

	imageURL, err := s.resolveImage(ctx, draft)
	if err != nil {
		return domain.Article{}, &domain.PublishError{Stage: "image", Err: err}
	}

	article := domain.Article{
		Slug:        slug,
		Title:       draft.Title,
		Summary:     draft.Summary,
		ContentHTML: draft.ContentHTML,
		ImageURL:    imageURL,
		FeedID:      draft.FeedID,
		ContentHash: draft.ContentHash,
		SourceURL:   draft.SourceURL,
		IsPublished: !asDraft,
	}
	created, err := s.articles.CreateArticle(ctx, article, draft.Specs, draft.Tags)
	if err != nil {
		return domain.Article{}, &domain.PublishError{Stage: "store", Err: err}
	}

	// Побочные эффекты не валят публикацию: сбой только логируется.
	s.runSideEffects(ctx, created)

	return created, nil
}

// uniqueSlug строит слаг из заголовка; при коллизии среди неудалённых
// статей добавляет числовой суффикс.
func (s *Service) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := Slugify(title)
	candidate := base
	for i := 2; ; i++ {
		taken, err := s.articles.SlugTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// resolveImage выбирает изображение черновика. URL собственного хранилища
// используется напрямую; остальные кандидаты скачиваются по очереди.
// Ошибка возвращается только если кандидаты были, но все отпали.
func (s *Service) resolveImage(ctx context.Context, draft domain.PendingDraft) (string, error) {
	if len(draft.Images) == 0 {
		return "", nil
	}
	var lastErr error
	for _, candidate := range draft.Images {
		if s.store.Owns(candidate) {
			return candidate, nil
		}
		data, err := s.fetcher.Fetch(ctx, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		stored, err := s.store.SaveImage(ctx, data, imageFilename(candidate))
		if err != nil {
			lastErr = err
			continue
		}
		return stored, nil
	}
	return "", fmt.Errorf("ни один кандидат изображения не получен: %w", lastErr)
}

func (s *Service) runSideEffects(ctx context.Context, article domain.Article) {
	if s.cache != nil && len(s.effects.CacheKeys) > 0 {
		if err := s.cache.Delete(s.effects.CacheKeys...); err != nil {
			s.log.Warn().Err(err).Msg("publish: инвалидация кэша не удалась")
		}
	}
	s.ping(ctx, s.effects.RevalidateURL, "revalidate", article.Slug)
	s.ping(ctx, s.effects.SearchIndexURL, "search_index", article.Slug)
}

func (s *Service) ping(ctx context.Context, endpoint, name, slug string) {
	if endpoint == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(`{"slug":"`+slug+`"}`))
	if err != nil {
		s.log.Warn().Err(err).Str("ping", name).Msg("publish: пинг не собрался")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := s.http.Do(req)
	metrics.ObserveNetworkRequest("publish", "ping", name, start, err)
	if err != nil {
		s.log.Warn().Err(err).Str("ping", name).Msg("publish: пинг не удался")
		return
	}
	_ = resp.Body.Close()
}

// Slugify приводит заголовок к URL-слагу.
func Slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 80 {
		slug = strings.Trim(slug[:80], "-")
	}
	if slug == "" {
		slug = "article"
	}
	return slug
}

func imageFilename(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "image.jpg"
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return "image.jpg"
	}
	return name
}
