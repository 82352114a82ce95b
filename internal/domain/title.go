package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// PlaceholderTitle подставляется, когда ни один кандидат не прошёл проверку.
const PlaceholderTitle = "New Car Review"

// MaxTitleLength — потолок длины заголовка, дальше обрезка с многоточием.
const MaxTitleLength = 200

const minTitleLength = 3

// Шаблонные подзаголовки, которые генератор выдаёт вместо настоящего
// заголовка. Такой кандидат отбрасывается в пользу запасных вариантов.
var genericHeaders = []string{
	"performance & specs",
	"performance and specs",
	"key features",
	"final verdict",
	"driving experience",
	"interior & comfort",
	"interior and comfort",
	"exterior design",
	"pros and cons",
	"conclusion",
	"overview",
	"introduction",
	"specifications",
	"verdict",
}

// IsGenericHeader сообщает, совпадает ли заголовок с шаблонным подзаголовком.
func IsGenericHeader(title string) bool {
	normalized := strings.ToLower(strings.TrimSpace(title))
	normalized = strings.TrimRight(normalized, ":.!")
	for _, g := range genericHeaders {
		if normalized == g {
			return true
		}
	}
	return false
}

// nonLatinTolerance — допустимое число букв вне латиницы в заголовке.
// Аудитория англоязычная: генератор не должен эхом отдавать исходный текст.
const nonLatinTolerance = 2

// LatinScriptOK проверяет, что заголовок почти целиком латиница.
func LatinScriptOK(title string) bool {
	nonLatin := 0
	for _, r := range title {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.Is(unicode.Latin, r) {
			nonLatin++
			if nonLatin > nonLatinTolerance {
				return false
			}
		}
	}
	return true
}

// SpecTitle строит заголовок из характеристик: "{год} {марка} {модель}".
func SpecTitle(specs *CarSpecs) string {
	if specs == nil || specs.Make == "" || specs.Model == "" {
		return ""
	}
	if specs.Year > 0 {
		return fmt.Sprintf("%d %s %s", specs.Year, specs.Make, specs.Model)
	}
	return specs.Make + " " + specs.Model
}

// ValidateTitle выбирает заголовок по цепочке запасных вариантов:
// извлечённый из генерации -> заголовок источника -> собранный из спеков.
// Непрошедшие кандидаты (шаблонные, нелатинские, короче трёх символов)
// пропускаются; если не прошёл никто — фиксированная заглушка.
func ValidateTitle(candidate, sourceTitle string, specs *CarSpecs) string {
	for _, t := range []string{candidate, sourceTitle, SpecTitle(specs)} {
		t = strings.TrimSpace(t)
		if len([]rune(t)) < minTitleLength {
			continue
		}
		if IsGenericHeader(t) {
			continue
		}
		if !LatinScriptOK(t) {
			continue
		}
		return truncateTitle(t)
	}
	return PlaceholderTitle
}

func truncateTitle(t string) string {
	runes := []rune(t)
	if len(runes) <= MaxTitleLength {
		return t
	}
	return string(runes[:MaxTitleLength-3]) + "..."
}
