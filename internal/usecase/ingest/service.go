package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/htmltext"
	"autonews-pipeline/internal/infra/metrics"
	"autonews-pipeline/internal/usecase/scoring"
)

// Service прогоняет элементы источников через нормализацию, дедупликацию
// и генерацию, создавая оценённые pending-черновики.
type Service struct {
	drafts    domain.DraftRepo
	feeds     domain.FeedRepo
	inbox     domain.ItemInbox
	generator domain.Generator
	policy    scoring.Policy
	log       zerolog.Logger
}

// NewService создаёт сервис инжеста.
func NewService(drafts domain.DraftRepo, feeds domain.FeedRepo, inbox domain.ItemInbox, generator domain.Generator, policy scoring.Policy, logger zerolog.Logger) *Service {
	return &Service{drafts: drafts, feeds: feeds, inbox: inbox, generator: generator, policy: policy, log: logger}
}

// RunScan обрабатывает до max накопленных элементов указанного типа.
// Сбой одного элемента не прерывает обработку остальных.
func (s *Service) RunScan(ctx context.Context, kind domain.SourceKind, max int) (int, error) {
	items, err := s.inbox.ReadBatch(ctx, kind, max)
	if err != nil {
		return 0, fmt.Errorf("чтение inbox %s: %w", kind, err)
	}
	created := 0
	for _, payload := range items {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		draft, err := s.ProcessItem(ctx, payload)
		switch {
		case err == nil:
			created++
			s.log.Info().Int64("draft", draft.ID).Str("source", string(kind)).Msg("ingest: черновик создан")
		case errors.Is(err, domain.ErrDuplicateItem):
			// Ожидаемый пропуск, не сбой.
			s.log.Debug().Str("ref", payload.VideoID+payload.URL).Msg("ingest: дубликат пропущен")
		default:
			s.log.Error().Err(err).Str("source", string(kind)).Msg("ingest: элемент не обработан")
		}
	}
	return created, nil
}

// ProcessItem проводит один элемент через весь конвейер до черновика.
// Дубликат возвращает domain.ErrDuplicateItem до вызова генерации.
func (s *Service) ProcessItem(ctx context.Context, payload domain.SourceItemPayload) (domain.PendingDraft, error) {
	feed, err := s.feeds.GetFeed(ctx, payload.FeedID)
	if err != nil {
		return domain.PendingDraft{}, fmt.Errorf("лента %d: %w", payload.FeedID, err)
	}

	item, err := Normalize(payload, feed)
	if err != nil {
		metrics.IncIngested(string(payload.Kind), "invalid")
		return domain.PendingDraft{}, err
	}

	dup, err := s.drafts.HasActiveDuplicate(ctx, item)
	if err != nil {
		return domain.PendingDraft{}, fmt.Errorf("проверка дубликата: %w", err)
	}
	if dup {
		metrics.IncIngested(string(item.SourceKind), "duplicate")
		return domain.PendingDraft{}, domain.ErrDuplicateItem
	}

	generated, err := s.generator.Generate(ctx, item, feed)
	if err != nil {
		var qualityErr *domain.ContentQualityError
		if errors.As(err, &qualityErr) {
			metrics.IncIngested(string(item.SourceKind), "quality_rejected")
		} else {
			metrics.IncIngested(string(item.SourceKind), "generation_failed")
		}
		return domain.PendingDraft{}, err
	}

	draft := domain.PendingDraft{
		FeedID:      item.FeedID,
		ContentHash: item.ContentHash,
		Title:       generated.Title,
		ContentHTML: generated.ContentHTML,
		Summary:     generated.Summary,
		Status:      domain.DraftPending,
		Images:      item.ImageCandidates,
		Specs:       generated.Specs,
		Tags:        generated.Tags,
	}
	switch item.SourceKind {
	case domain.SourceYouTube:
		draft.VideoID = item.SourceRef
	case domain.SourceRSS:
		draft.SourceURL = item.SourceRef
	}
	if len(draft.Images) > 0 {
		draft.ImageSource = domain.ImageFromSource
	} else {
		draft.ImageSource = domain.ImageNone
	}
	// Оценка назначается один раз при создании и дальше не меняется.
	draft.QualityScore = s.policy.Score(draft)

	created, err := s.drafts.CreateDraft(ctx, draft)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateItem) {
			// Гонку закрыл частичный уникальный индекс.
			metrics.IncIngested(string(item.SourceKind), "duplicate")
			return domain.PendingDraft{}, domain.ErrDuplicateItem
		}
		return domain.PendingDraft{}, fmt.Errorf("сохранение черновика: %w", err)
	}
	metrics.IncIngested(string(item.SourceKind), "created")
	return created, nil
}

// RunSpecsPass дозаполняет характеристики у pending-черновиков без спеков.
// Оценка качества при этом не пересчитывается.
func (s *Service) RunSpecsPass(ctx context.Context, limit int) (int, error) {
	drafts, err := s.drafts.ListPendingWithoutSpecs(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("выборка черновиков без спеков: %w", err)
	}
	filled := 0
	for _, d := range drafts {
		if err := ctx.Err(); err != nil {
			return filled, err
		}
		specs, err := s.generator.ExtractSpecs(ctx, htmltext.Strip(d.ContentHTML))
		if err != nil {
			s.log.Error().Err(err).Int64("draft", d.ID).Msg("deep-specs: извлечение не удалось")
			continue
		}
		if specs.Empty() {
			continue
		}
		if err := s.drafts.SetSpecs(ctx, d.ID, specs); err != nil {
			s.log.Error().Err(err).Int64("draft", d.ID).Msg("deep-specs: сохранение не удалось")
			continue
		}
		filled++
	}
	return filled, nil
}
