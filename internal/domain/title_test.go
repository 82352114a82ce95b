package domain

import (
	"strings"
	"testing"
)

func TestValidateTitlePrefersCandidate(t *testing.T) {
	got := ValidateTitle("2026 BMW M5 Touring First Drive", "BMW press release", nil)
	if got != "2026 BMW M5 Touring First Drive" {
		t.Fatalf("ожидали кандидата, получили %q", got)
	}
}

func TestValidateTitleSkipsGenericHeader(t *testing.T) {
	got := ValidateTitle("Performance & Specs", "Porsche 911 GT3 RS Review", nil)
	if got != "Porsche 911 GT3 RS Review" {
		t.Fatalf("ожидали заголовок источника, получили %q", got)
	}
}

func TestValidateTitleBuildsFromSpecs(t *testing.T) {
	specs := &CarSpecs{Make: "Tesla", Model: "Model 3", Year: 2026}
	got := ValidateTitle("Key Features:", "", specs)
	if got != "2026 Tesla Model 3" {
		t.Fatalf("ожидали заголовок из спеков, получили %q", got)
	}
}

func TestValidateTitleSpecsWithoutYear(t *testing.T) {
	specs := &CarSpecs{Make: "Rivian", Model: "R2"}
	got := ValidateTitle("", "", specs)
	if got != "Rivian R2" {
		t.Fatalf("ожидали заголовок без года, получили %q", got)
	}
}

func TestValidateTitleRejectsNonLatin(t *testing.T) {
	got := ValidateTitle("Обзор нового кроссовера", "Skoda Kodiaq Facelift Revealed", nil)
	if got != "Skoda Kodiaq Facelift Revealed" {
		t.Fatalf("нелатинский кандидат должен отбрасываться, получили %q", got)
	}
}

func TestValidateTitlePlaceholder(t *testing.T) {
	got := ValidateTitle("", "ok", nil)
	if got != PlaceholderTitle {
		t.Fatalf("ожидали заглушку, получили %q", got)
	}
}

func TestValidateTitleTruncates(t *testing.T) {
	long := strings.Repeat("Long Title ", 30)
	got := ValidateTitle(long, "", nil)
	if len([]rune(got)) != MaxTitleLength {
		t.Fatalf("ожидали длину %d, получили %d", MaxTitleLength, len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("обрезанный заголовок должен заканчиваться многоточием: %q", got)
	}
}

func TestIsGenericHeaderTrailingPunctuation(t *testing.T) {
	for _, title := range []string{"Conclusion", "conclusion:", "  Final Verdict.  ", "OVERVIEW"} {
		if !IsGenericHeader(title) {
			t.Fatalf("ожидали шаблонный заголовок: %q", title)
		}
	}
	if IsGenericHeader("2026 Honda Prelude Verdict") {
		t.Fatalf("настоящий заголовок не должен считаться шаблонным")
	}
}
