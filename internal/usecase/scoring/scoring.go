package scoring

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/htmltext"
)

// Policy задаёт веса оценки качества. Конкретные числа — настраиваемая
// политика; контракт — детерминизм и монотонность: больше сигналов,
// не ниже оценка.
type Policy struct {
	Base       int
	Words200   int
	Words400   int
	Words700   int
	SpecsBonus int
	ImageBonus int
	TitleBonus int
}

// DefaultPolicy возвращает веса по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		Base:       1,
		Words200:   1,
		Words400:   1,
		Words700:   2,
		SpecsBonus: 2,
		ImageBonus: 2,
		TitleBonus: 1,
	}
}

// Score вычисляет оценку качества черновика в диапазоне 1-10.
func (p Policy) Score(d domain.PendingDraft) int {
	score := p.Base
	words := htmltext.WordCount(d.ContentHTML)
	if words >= 200 {
		score += p.Words200
	}
	if words >= 400 {
		score += p.Words400
	}
	if words >= 700 {
		score += p.Words700
	}
	if !d.Specs.Empty() {
		score += p.SpecsBonus
	}
	if d.HasImage() {
		score += p.ImageBonus
	}
	if d.Title != "" && !domain.IsGenericHeader(d.Title) {
		score += p.TitleBonus
	}
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}

// Service проставляет оценки черновикам без quality score.
type Service struct {
	drafts domain.DraftRepo
	policy Policy
	log    zerolog.Logger
}

// NewService создаёт сервис оценки.
func NewService(drafts domain.DraftRepo, policy Policy, logger zerolog.Logger) *Service {
	return &Service{drafts: drafts, policy: policy, log: logger}
}

// RunScorePass оценивает до limit неоценённых pending-черновиков.
// Оценка назначается один раз и дальше не меняется.
func (s *Service) RunScorePass(ctx context.Context, limit int) (int, error) {
	drafts, err := s.drafts.ListUnscoredPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("выборка неоценённых черновиков: %w", err)
	}
	scored := 0
	for _, d := range drafts {
		score := s.policy.Score(d)
		if err := s.drafts.SetQualityScore(ctx, d.ID, score); err != nil {
			s.log.Error().Err(err).Int64("draft", d.ID).Msg("score: не удалось сохранить оценку")
			continue
		}
		s.log.Debug().Int64("draft", d.ID).Int("score", score).Msg("score: оценка назначена")
		scored++
	}
	return scored, nil
}
