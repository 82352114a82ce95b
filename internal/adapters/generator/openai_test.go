package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"autonews-pipeline/internal/domain"
	openai "autonews-pipeline/internal/infra/openai"
)

type fakeChat struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeChat) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return openai.ChatCompletionResponse{}, f.errs[idx]
	}
	content := ""
	if idx < len(f.responses) {
		content = f.responses[idx]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Role: "assistant", Content: content}}},
	}, nil
}

func longArticleMarkdown() string {
	var b strings.Builder
	b.WriteString("# 2026 Honda Prelude Returns\n\n## Powertrain\n\n")
	for i := 0; i < 30; i++ {
		b.WriteString("The hybrid coupe pairs a two liter engine with two electric motors. ")
	}
	return b.String()
}

func rssItem() domain.RawItem {
	return domain.RawItem{
		SourceKind: domain.SourceRSS,
		SourceRef:  "https://press.example.com/prelude",
		Title:      "Honda Prelude press release",
		Body:       "<p>Honda revives the Prelude as a hybrid coupe.</p>",
	}
}

func TestGenerateBuildsDraft(t *testing.T) {
	chat := &fakeChat{responses: []string{
		longArticleMarkdown(),
		`{"make":"Honda","model":"Prelude","year":2026,"tags":["honda","hybrid"]}`,
	}}
	gen := NewOpenAI(chat, "test-model", time.Second)

	draft, err := gen.Generate(context.Background(), rssItem(), domain.SourceFeed{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if draft.Title != "2026 Honda Prelude Returns" {
		t.Fatalf("заголовок должен браться из первого h1, получили %q", draft.Title)
	}
	if !strings.Contains(draft.ContentHTML, "<h2>") {
		t.Fatalf("markdown должен рендериться в HTML")
	}
	if draft.Summary == "" || draft.Summary == FallbackSummary {
		t.Fatalf("аннотация должна браться из первого абзаца, получили %q", draft.Summary)
	}
	if draft.Specs == nil || draft.Specs.Make != "Honda" || draft.Specs.Year != 2026 {
		t.Fatalf("спеки не распакованы: %+v", draft.Specs)
	}
	if len(draft.Tags) != 2 {
		t.Fatalf("ожидали два тега, получили %v", draft.Tags)
	}
}

func TestGenerateRejectsShortArticle(t *testing.T) {
	chat := &fakeChat{responses: []string{"# Short\n\nToo short to publish."}}
	gen := NewOpenAI(chat, "test-model", time.Second)

	_, err := gen.Generate(context.Background(), rssItem(), domain.SourceFeed{})
	var qualityErr *domain.ContentQualityError
	if !errors.As(err, &qualityErr) {
		t.Fatalf("ожидали ContentQualityError, получили %v", err)
	}
	if chat.calls != 1 {
		t.Fatalf("извлечение спеков не должно запускаться для отбракованной статьи")
	}
}

func TestGenerateSpecFailureDoesNotFailDraft(t *testing.T) {
	chat := &fakeChat{
		responses: []string{longArticleMarkdown(), "not json"},
	}
	gen := NewOpenAI(chat, "test-model", time.Second)

	draft, err := gen.Generate(context.Background(), rssItem(), domain.SourceFeed{})
	if err != nil {
		t.Fatalf("сбой извлечения спеков не должен срывать генерацию: %v", err)
	}
	if draft.Specs != nil || draft.Tags != nil {
		t.Fatalf("при сбое извлечения спеки и теги должны быть пустыми")
	}
}

func TestGenerateTransientAPIError(t *testing.T) {
	chat := &fakeChat{errs: []error{&openai.APIError{StatusCode: 429, Message: "rate limited"}}}
	gen := NewOpenAI(chat, "test-model", time.Second)

	_, err := gen.Generate(context.Background(), rssItem(), domain.SourceFeed{})
	var genErr *domain.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("ожидали GenerationError, получили %v", err)
	}
	if !genErr.Transient {
		t.Fatalf("429 должен считаться повторяемым")
	}
}

func TestGenerateEmptySource(t *testing.T) {
	gen := NewOpenAI(&fakeChat{}, "test-model", time.Second)
	item := rssItem()
	item.Body = "   "
	_, err := gen.Generate(context.Background(), item, domain.SourceFeed{})
	var qualityErr *domain.ContentQualityError
	if !errors.As(err, &qualityErr) {
		t.Fatalf("пустой источник должен давать ContentQualityError, получили %v", err)
	}
}
