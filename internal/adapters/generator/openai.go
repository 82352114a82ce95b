package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/russross/blackfriday/v2"

	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/htmltext"
	"autonews-pipeline/internal/infra/metrics"
	openai "autonews-pipeline/internal/infra/openai"
)

// MinContentWords — жёсткий порог: статьи короче отбрасываются целиком.
const MinContentWords = 200

const sourceClipRunes = 6000

// FallbackSummary подставляется, если в сгенерированном HTML нет абзацев.
const FallbackSummary = "Read the full story for details."

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI реализует domain.Generator через Chat Completions API.
type OpenAI struct {
	client    chatClient
	model     string
	timeout   time.Duration
	converter *md.Converter
}

var _ domain.Generator = (*OpenAI)(nil)

// NewOpenAI создаёт генератор статей.
func NewOpenAI(client chatClient, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout, converter: md.NewConverter("", true, nil)}
}

// Generate строит статью из нормализованного элемента.
func (g *OpenAI) Generate(ctx context.Context, item domain.RawItem, feed domain.SourceFeed) (domain.GeneratedDraft, error) {
	source := g.sourceText(item)
	if source == "" {
		return domain.GeneratedDraft{}, &domain.ContentQualityError{Reason: "пустой текст источника"}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.completeArticle(ctx, item, feed, source)
	if err != nil {
		return domain.GeneratedDraft{}, err
	}

	contentHTML := string(blackfriday.Run([]byte(raw)))
	words := htmltext.WordCount(contentHTML)
	if words < MinContentWords {
		return domain.GeneratedDraft{}, &domain.ContentQualityError{
			Reason: fmt.Sprintf("в статье %d слов, минимум %d", words, MinContentWords),
		}
	}

	// Спеки и теги — отдельный вызов; их отсутствие не срывает генерацию.
	specs, tags, specErr := g.extract(ctx, source)
	if specErr != nil {
		specs, tags = nil, nil
	}

	candidate, _ := htmltext.FirstHeading(contentHTML)
	title := domain.ValidateTitle(candidate, item.Title, specs)

	summary, ok := htmltext.FirstParagraph(contentHTML)
	if !ok {
		summary = FallbackSummary
	}
	summary = htmltext.Truncate(summary, 300)

	return domain.GeneratedDraft{
		Title:       title,
		ContentHTML: contentHTML,
		Summary:     summary,
		Specs:       specs,
		Tags:        tags,
	}, nil
}

// ExtractSpecs извлекает характеристики автомобиля из произвольного текста.
func (g *OpenAI) ExtractSpecs(ctx context.Context, text string) (*domain.CarSpecs, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	specs, _, err := g.extract(ctx, clipRunes(text, sourceClipRunes))
	return specs, err
}

func (g *OpenAI) sourceText(item domain.RawItem) string {
	body := strings.TrimSpace(item.Body)
	if body == "" {
		return ""
	}
	if item.SourceKind == domain.SourceRSS && strings.Contains(body, "<") {
		if converted, err := g.converter.ConvertString(body); err == nil {
			body = converted
		} else {
			body = htmltext.Strip(body)
		}
	}
	return clipRunes(strings.TrimSpace(body), sourceClipRunes)
}

func (g *OpenAI) completeArticle(ctx context.Context, item domain.RawItem, feed domain.SourceFeed, source string) (string, error) {
	kind := "press release"
	if item.SourceKind == domain.SourceYouTube {
		kind = "video transcript"
	}
	userPrompt := fmt.Sprintf(`Write an original English automotive news article based on this %s.
Start with a level-1 markdown heading that names the specific vehicle.
Use short sections with level-2 headings. At least 300 words. Facts only from the source.

Source title: %s
Source material:
%s`, kind, item.Title, source)

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.4,
		MaxTokens:   2000,
		Messages: []openai.ChatMessage{
			{
				Role:    openai.RoleSystem,
				Content: "You are an automotive journalist. Rewrite source material into original articles. Never invent specifications or prices.",
			},
			{
				Role:    openai.RoleUser,
				Content: userPrompt,
			},
		},
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", g.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return "", &domain.GenerationError{Provider: g.model, Transient: true, Err: errors.New("пустой ответ модели")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type specPayload struct {
	Make         string            `json:"make"`
	Model        string            `json:"model"`
	Year         int               `json:"year"`
	Engine       string            `json:"engine"`
	Horsepower   int               `json:"horsepower"`
	Torque       string            `json:"torque"`
	Transmission string            `json:"transmission"`
	Drivetrain   string            `json:"drivetrain"`
	Acceleration string            `json:"acceleration"`
	TopSpeed     string            `json:"top_speed"`
	Price        string            `json:"price"`
	Extra        map[string]string `json:"extra"`
	Tags         []string          `json:"tags"`
}

func (g *OpenAI) extract(ctx context.Context, source string) (*domain.CarSpecs, []string, error) {
	userPrompt := fmt.Sprintf(`Extract vehicle specifications from the text below.
Return JSON: {"make":"","model":"","year":0,"engine":"","horsepower":0,"torque":"","transmission":"","drivetrain":"","acceleration":"","top_speed":"","price":"","extra":{},"tags":[]}.
Omit values the text does not state. Tags are up to five short topical labels.

Text:
%s`, source)

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0,
		MaxTokens:   500,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: "You extract structured automotive data. Output only JSON."},
			{Role: openai.RoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, nil, g.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil, &domain.GenerationError{Provider: g.model, Transient: true, Err: errors.New("пустой ответ модели")}
	}
	var parsed specPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Choices[0].Message.Content)), &parsed); err != nil {
		return nil, nil, &domain.GenerationError{Provider: g.model, Err: fmt.Errorf("распаковка спеков: %w", err)}
	}
	specs := &domain.CarSpecs{
		Make:         strings.TrimSpace(parsed.Make),
		Model:        strings.TrimSpace(parsed.Model),
		Year:         parsed.Year,
		Engine:       strings.TrimSpace(parsed.Engine),
		Horsepower:   parsed.Horsepower,
		Torque:       strings.TrimSpace(parsed.Torque),
		Transmission: strings.TrimSpace(parsed.Transmission),
		Drivetrain:   strings.TrimSpace(parsed.Drivetrain),
		Acceleration: strings.TrimSpace(parsed.Acceleration),
		TopSpeed:     strings.TrimSpace(parsed.TopSpeed),
		Price:        strings.TrimSpace(parsed.Price),
		Extra:        parsed.Extra,
	}
	if specs.Empty() {
		specs = nil
	}
	return specs, filterTags(parsed.Tags), nil
}

func (g *OpenAI) wrap(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		metrics.IncGenerationFailure(g.model, apiErr.Transient())
		return &domain.GenerationError{Provider: g.model, Transient: apiErr.Transient(), Err: err}
	}
	// Сетевые сбои и таймауты повторяемы.
	metrics.IncGenerationFailure(g.model, true)
	return &domain.GenerationError{Provider: g.model, Transient: true, Err: err}
}

func filterTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clipRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
