package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"autonews-pipeline/internal/domain"
)

type stubArticles struct {
	taken   map[string]bool
	created []domain.Article
}

func (s *stubArticles) CreateArticle(_ context.Context, a domain.Article, _ *domain.CarSpecs, _ []string) (domain.Article, error) {
	a.ID = int64(len(s.created) + 1)
	s.created = append(s.created, a)
	return a, nil
}
func (s *stubArticles) SlugTaken(_ context.Context, slug string) (bool, error) {
	return s.taken[slug], nil
}
func (s *stubArticles) HasActiveByHash(context.Context, string) (bool, error) { return false, nil }

type stubFetcher struct {
	data  []byte
	err   error
	calls int
}

func (s *stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	s.calls++
	return s.data, s.err
}

type stubStore struct {
	prefix string
	saved  int
}

func (s *stubStore) SaveImage(_ context.Context, _ []byte, filename string) (string, error) {
	s.saved++
	return s.prefix + "/" + filename, nil
}
func (s *stubStore) Owns(url string) bool {
	return s.prefix != "" && len(url) > len(s.prefix) && url[:len(s.prefix)] == s.prefix
}

func newTestService(articles *stubArticles, fetcher *stubFetcher, store *stubStore) *Service {
	return NewService(articles, fetcher, store, nil, SideEffects{}, zerolog.Nop())
}

func TestPublishUniqueSlugSuffix(t *testing.T) {
	articles := &stubArticles{taken: map[string]bool{"2026-audi-rs6-avant": true, "2026-audi-rs6-avant-2": true}}
	svc := newTestService(articles, &stubFetcher{}, &stubStore{prefix: "https://cdn.example.com"})

	article, err := svc.Publish(context.Background(), domain.PendingDraft{Title: "2026 Audi RS6 Avant!"}, false)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if article.Slug != "2026-audi-rs6-avant-3" {
		t.Fatalf("ожидали суффикс -3, получили %q", article.Slug)
	}
}

func TestPublishUsesOwnedImageDirectly(t *testing.T) {
	fetcher := &stubFetcher{}
	store := &stubStore{prefix: "https://cdn.example.com"}
	svc := newTestService(&stubArticles{}, fetcher, store)

	draft := domain.PendingDraft{
		Title:  "BMW i5 Touring",
		Images: []string{"https://cdn.example.com/media/i5.jpg"},
	}
	article, err := svc.Publish(context.Background(), draft, false)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if article.ImageURL != "https://cdn.example.com/media/i5.jpg" {
		t.Fatalf("URL собственного хранилища должен использоваться напрямую: %q", article.ImageURL)
	}
	if fetcher.calls != 0 {
		t.Fatalf("собственное изображение не должно перекачиваться")
	}
}

func TestPublishFetchesAndStoresImage(t *testing.T) {
	fetcher := &stubFetcher{data: []byte{0xFF, 0xD8, 0xFF}}
	store := &stubStore{prefix: "https://cdn.example.com"}
	svc := newTestService(&stubArticles{}, fetcher, store)

	draft := domain.PendingDraft{
		Title:  "BMW i5 Touring",
		Images: []string{"https://press.example.com/photos/i5.jpg"},
	}
	article, err := svc.Publish(context.Background(), draft, false)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if article.ImageURL != "https://cdn.example.com/i5.jpg" {
		t.Fatalf("изображение должно сохраняться в хранилище: %q", article.ImageURL)
	}
	if store.saved != 1 {
		t.Fatalf("ожидали одно сохранение, было %d", store.saved)
	}
}

func TestPublishFailsWhenAllCandidatesFail(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("403 от CDN")}
	svc := newTestService(&stubArticles{}, fetcher, &stubStore{prefix: "https://cdn.example.com"})

	draft := domain.PendingDraft{
		Title:  "BMW i5 Touring",
		Images: []string{"https://a.example.com/1.jpg", "https://b.example.com/2.jpg"},
	}
	_, err := svc.Publish(context.Background(), draft, false)
	var pubErr *domain.PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("ожидали PublishError, получили %v", err)
	}
	if pubErr.Stage != "image" {
		t.Fatalf("ожидали этап image, получили %q", pubErr.Stage)
	}
	if fetcher.calls != 2 {
		t.Fatalf("должны перебираться все кандидаты, было %d попыток", fetcher.calls)
	}
}

func TestPublishWithoutImagesSucceeds(t *testing.T) {
	svc := newTestService(&stubArticles{}, &stubFetcher{}, &stubStore{prefix: "https://cdn.example.com"})
	article, err := svc.Publish(context.Background(), domain.PendingDraft{Title: "Dacia Duster Pricing"}, false)
	if err != nil {
		t.Fatalf("черновик без изображений публикуется без картинки: %v", err)
	}
	if article.ImageURL != "" {
		t.Fatalf("не ожидали URL изображения: %q", article.ImageURL)
	}
}

func TestPublishAsDraftIsUnpublished(t *testing.T) {
	articles := &stubArticles{}
	svc := newTestService(articles, &stubFetcher{}, &stubStore{prefix: "https://cdn.example.com"})

	article, err := svc.Publish(context.Background(), domain.PendingDraft{Title: "Volvo EX60 Preview"}, true)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if article.IsPublished {
		t.Fatalf("в режиме черновика статья не должна публиковаться")
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct{ in, want string }{
		{"2026 Audi RS6 Avant!", "2026-audi-rs6-avant"},
		{"  BMW & M5  ", "bmw-m5"},
		{"???", "article"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Fatalf("Slugify(%q) = %q, ожидали %q", tc.in, got, tc.want)
		}
	}
}
