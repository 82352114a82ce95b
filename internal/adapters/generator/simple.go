package generator

import (
	"context"
	"fmt"
	"html"
	"strings"

	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/htmltext"
)

// SimpleGenerator реализует domain.Generator эвристикой без LLM.
// Используется, когда ключ провайдера не настроен: текст источника
// оборачивается в абзацы как есть.
type SimpleGenerator struct{}

// NewSimple создаёт генератор.
func NewSimple() *SimpleGenerator {
	return &SimpleGenerator{}
}

var _ domain.Generator = (*SimpleGenerator)(nil)

// Generate собирает статью напрямую из текста источника.
func (s *SimpleGenerator) Generate(_ context.Context, item domain.RawItem, _ domain.SourceFeed) (domain.GeneratedDraft, error) {
	text := htmltext.Strip(item.Body)
	if text == "" {
		return domain.GeneratedDraft{}, &domain.ContentQualityError{Reason: "пустой текст источника"}
	}

	title := domain.ValidateTitle("", item.Title, nil)

	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(title))
	for _, para := range splitParagraphs(text) {
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(para))
	}
	contentHTML := b.String()

	words := htmltext.WordCount(contentHTML)
	if words < MinContentWords {
		return domain.GeneratedDraft{}, &domain.ContentQualityError{
			Reason: fmt.Sprintf("в статье %d слов, минимум %d", words, MinContentWords),
		}
	}

	summary, ok := htmltext.FirstParagraph(contentHTML)
	if !ok {
		summary = FallbackSummary
	}

	return domain.GeneratedDraft{
		Title:       title,
		ContentHTML: contentHTML,
		Summary:     htmltext.Truncate(summary, 300),
	}, nil
}

// ExtractSpecs без LLM ничего не извлекает.
func (s *SimpleGenerator) ExtractSpecs(context.Context, string) (*domain.CarSpecs, error) {
	return nil, nil
}

// splitParagraphs режет текст на абзацы примерно по 60 слов.
func splitParagraphs(text string) []string {
	words := strings.Fields(text)
	const perParagraph = 60
	var out []string
	for len(words) > 0 {
		n := perParagraph
		if n > len(words) {
			n = len(words)
		}
		out = append(out, strings.Join(words[:n], " "))
		words = words[n:]
	}
	return out
}
