package autopublish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/htmltext"
	"autonews-pipeline/internal/infra/metrics"
)

// ErrSweepLocked возвращается, когда проход уже выполняется другим процессом.
// Это ожидаемый исход конкурентного запуска, а не сбой.
var ErrSweepLocked = errors.New("проход автопубликации уже выполняется")

// DefaultMaxAttempts — порог предохранителя: столько неудачных
// материализаций переводят черновик в auto_failed навсегда.
const DefaultMaxAttempts = 3

// Publisher материализует черновик в статью.
type Publisher interface {
	Publish(ctx context.Context, draft domain.PendingDraft, asDraft bool) (domain.Article, error)
}

// Config — параметры движка, не входящие в строку настроек.
type Config struct {
	MaxAttempts    int
	LockStaleAfter time.Duration
	FallbackBatch  int
}

// Service — движок решений автопубликации.
type Service struct {
	drafts    domain.DraftRepo
	feeds     domain.FeedRepo
	settings  domain.SettingsRepo
	decisions domain.DecisionLogRepo
	publisher Publisher
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger
}

// NewService создаёт движок.
func NewService(drafts domain.DraftRepo, feeds domain.FeedRepo, settings domain.SettingsRepo, decisions domain.DecisionLogRepo, publisher Publisher, cfg Config, logger zerolog.Logger) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.LockStaleAfter <= 0 {
		cfg.LockStaleAfter = 10 * time.Minute
	}
	if cfg.FallbackBatch <= 0 {
		cfg.FallbackBatch = 20
	}
	return &Service{
		drafts:    drafts,
		feeds:     feeds,
		settings:  settings,
		decisions: decisions,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		log:       logger,
	}
}

// SweepResult — итог одного прохода.
type SweepResult struct {
	Evaluated int
	Decisions map[domain.Decision]int
}

// RunSweep оценивает pending-черновики, старые первыми. Блокировка задачи
// захватывается до сканирования и снимается в defer даже при ошибке.
// Сбой одного черновика не прерывает оценку остальных.
func (s *Service) RunSweep(ctx context.Context) (SweepResult, error) {
	now := s.now().UTC()
	acquired, err := s.settings.AcquireTaskLock(ctx, domain.TaskAutoPublish, now, s.cfg.LockStaleAfter)
	if err != nil {
		return SweepResult{}, fmt.Errorf("захват блокировки: %w", err)
	}
	if !acquired {
		return SweepResult{}, ErrSweepLocked
	}
	defer func() {
		if err := s.settings.ReleaseTaskLock(context.Background(), domain.TaskAutoPublish); err != nil {
			s.log.Error().Err(err).Msg("sweep: блокировка не снята")
		}
	}()

	sweepStart := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(sweepStart).Seconds())
	}()

	cfg, err := s.settings.GetSettings(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("чтение настроек: %w", err)
	}

	result := SweepResult{Decisions: make(map[domain.Decision]int)}
	if !cfg.AutoPublishEnabled {
		s.log.Debug().Msg("sweep: автопубликация выключена")
		return result, nil
	}

	batch := cfg.MaxItemsPerCycle
	if batch <= 0 {
		batch = s.cfg.FallbackBatch
	}
	drafts, err := s.drafts.ListEligiblePending(ctx, batch)
	if err != nil {
		return SweepResult{}, fmt.Errorf("выборка черновиков: %w", err)
	}

	for _, draft := range drafts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		decision := s.evaluateDraft(ctx, cfg, draft)
		result.Evaluated++
		result.Decisions[decision]++
		if decision == domain.DecisionSkippedLimit {
			// Лимит общий: остальные черновики в этом проходе получили бы
			// то же решение, их оценит следующий цикл.
			break
		}
	}
	s.log.Info().Int("evaluated", result.Evaluated).Msg("sweep: проход завершён")
	return result, nil
}

// evaluateDraft выносит ровно одно решение по черновику и пишет ровно одну
// запись журнала — в том числе для исхода failed.
func (s *Service) evaluateDraft(ctx context.Context, cfg domain.AutomationSettings, draft domain.PendingDraft) domain.Decision {
	feed, err := s.feeds.GetFeed(ctx, draft.FeedID)
	if err != nil {
		// Черновик без ленты оценивается с классификацией review.
		feed = domain.SourceFeed{}
	}

	entry := s.snapshot(draft, feed)
	decision, articleID, evalErr := s.decide(ctx, cfg, draft, feed)
	entry.Decision = decision
	entry.ArticleID = articleID
	if evalErr != nil {
		entry.Error = evalErr.Error()
	}

	if _, err := s.decisions.Append(ctx, entry); err != nil {
		s.log.Error().Err(err).Int64("draft", draft.ID).Msg("sweep: запись журнала не удалась")
	}
	metrics.IncDecision(string(decision))
	s.log.Info().Int64("draft", draft.ID).Str("decision", string(decision)).Msg("sweep: решение принято")
	return decision
}

func (s *Service) decide(ctx context.Context, cfg domain.AutomationSettings, draft domain.PendingDraft, feed domain.SourceFeed) (domain.Decision, *int64, error) {
	now := s.now().UTC()

	if draft.QualityScore < cfg.AutoPublishMinQuality {
		return domain.DecisionSkippedQuality, nil, nil
	}
	if cfg.AutoPublishRequireSafeFeed && feed.Safety() == domain.SafetyUnsafe {
		return domain.DecisionSkippedSafety, nil, nil
	}
	if cfg.AutoPublishRequireImage && !draft.HasImage() {
		return domain.DecisionSkippedNoImage, nil, nil
	}

	// Часовой лимит считается по журналу за скользящие 60 минут,
	// дневной — условным инкрементом счётчика в строке настроек.
	hourly, err := s.decisions.CountLimitedSince(ctx, now.Add(-time.Hour))
	if err != nil {
		return domain.DecisionFailed, nil, s.recordFailure(ctx, draft, now, fmt.Errorf("подсчёт часового лимита: %w", err))
	}
	if hourly >= cfg.AutoPublishMaxPerHour {
		return domain.DecisionSkippedLimit, nil, nil
	}
	ok, err := s.settings.IncrementTodayCount(ctx, now)
	if err != nil {
		return domain.DecisionFailed, nil, s.recordFailure(ctx, draft, now, fmt.Errorf("дневной счётчик: %w", err))
	}
	if !ok {
		return domain.DecisionSkippedLimit, nil, nil
	}

	article, err := s.publisher.Publish(ctx, draft, cfg.AutoPublishAsDraft)
	if err != nil {
		return domain.DecisionFailed, nil, s.recordFailure(ctx, draft, now, err)
	}

	if err := s.drafts.MarkPublished(ctx, draft.ID, true); err != nil {
		s.log.Error().Err(err).Int64("draft", draft.ID).Msg("sweep: статус черновика не обновлён")
	}

	decision := domain.DecisionPublished
	if cfg.AutoPublishAsDraft {
		decision = domain.DecisionDrafted
	}
	return decision, &article.ID, nil
}

// recordFailure фиксирует неудачную материализацию и срабатывание
// предохранителя. Возвращённая ошибка попадает в запись журнала.
func (s *Service) recordFailure(ctx context.Context, draft domain.PendingDraft, now time.Time, cause error) error {
	attempts, tripped, err := s.drafts.RecordPublishFailure(ctx, draft.ID, cause.Error(), now, s.cfg.MaxAttempts)
	if err != nil {
		s.log.Error().Err(err).Int64("draft", draft.ID).Msg("sweep: счётчик попыток не обновлён")
		return cause
	}
	if tripped {
		s.log.Warn().Int64("draft", draft.ID).Int("attempts", attempts).Msg("sweep: предохранитель сработал, черновик выведен из автопубликации")
	}
	return cause
}

func (s *Service) snapshot(draft domain.PendingDraft, feed domain.SourceFeed) domain.AutoPublishLog {
	sourceType := domain.SourceRSS
	if draft.VideoID != "" {
		sourceType = domain.SourceYouTube
	}
	return domain.AutoPublishLog{
		DraftID:         draft.ID,
		QualityScore:    draft.QualityScore,
		SafetyScore:     feed.Safety(),
		ImagePolicy:     feed.ImagePolicy,
		FeedName:        feed.Name,
		SourceType:      sourceType,
		ContentLength:   htmltext.WordCount(draft.ContentHTML),
		HasImage:        draft.HasImage(),
		HasSpecs:        !draft.Specs.Empty(),
		TagCount:        len(draft.Tags),
		CategoryName:    feed.CategoryName,
		SourceIsYouTube: sourceType == domain.SourceYouTube,
	}
}
