package scoring

import (
	"strings"
	"testing"

	"autonews-pipeline/internal/domain"
)

func htmlWithWords(n int) string {
	return "<p>" + strings.TrimSpace(strings.Repeat("word ", n)) + "</p>"
}

func TestScoreFullDraft(t *testing.T) {
	draft := domain.PendingDraft{
		Title:       "2026 Toyota GR Corolla Review",
		ContentHTML: htmlWithWords(400),
		Images:      []string{"https://cdn.example.com/gr.jpg"},
		Specs:       &domain.CarSpecs{Make: "Toyota", Model: "GR Corolla"},
	}
	got := DefaultPolicy().Score(draft)
	if got != 8 {
		t.Fatalf("ожидали оценку 8, получили %d", got)
	}
}

func TestScoreMinimalDraft(t *testing.T) {
	draft := domain.PendingDraft{Title: "Conclusion", ContentHTML: htmlWithWords(50)}
	got := DefaultPolicy().Score(draft)
	if got != 1 {
		t.Fatalf("ожидали базовую оценку 1, получили %d", got)
	}
}

func TestScoreDeterministic(t *testing.T) {
	draft := domain.PendingDraft{
		Title:       "2026 Mazda MX-5 Update",
		ContentHTML: htmlWithWords(700),
		Images:      []string{"a.jpg"},
	}
	policy := DefaultPolicy()
	first := policy.Score(draft)
	for i := 0; i < 5; i++ {
		if got := policy.Score(draft); got != first {
			t.Fatalf("оценка должна быть детерминированной: %d != %d", got, first)
		}
	}
}

func TestScoreMonotonic(t *testing.T) {
	policy := DefaultPolicy()
	base := domain.PendingDraft{Title: "2026 Kia EV4 Details", ContentHTML: htmlWithWords(400)}
	baseScore := policy.Score(base)

	withImage := base
	withImage.Images = []string{"ev4.jpg"}
	if policy.Score(withImage) < baseScore {
		t.Fatalf("изображение не должно снижать оценку")
	}

	withSpecs := withImage
	withSpecs.Specs = &domain.CarSpecs{Make: "Kia", Model: "EV4"}
	if policy.Score(withSpecs) < policy.Score(withImage) {
		t.Fatalf("спеки не должны снижать оценку")
	}

	longer := withSpecs
	longer.ContentHTML = htmlWithWords(700)
	if policy.Score(longer) < policy.Score(withSpecs) {
		t.Fatalf("больший объём не должен снижать оценку")
	}
}

func TestScoreClampedToTen(t *testing.T) {
	policy := Policy{Base: 5, Words200: 5, Words400: 5, Words700: 5, SpecsBonus: 5, ImageBonus: 5, TitleBonus: 5}
	draft := domain.PendingDraft{
		Title:       "2026 Lucid Gravity Review",
		ContentHTML: htmlWithWords(700),
		Images:      []string{"g.jpg"},
		Specs:       &domain.CarSpecs{Make: "Lucid", Model: "Gravity"},
	}
	if got := policy.Score(draft); got != 10 {
		t.Fatalf("оценка должна упираться в 10, получили %d", got)
	}
}
