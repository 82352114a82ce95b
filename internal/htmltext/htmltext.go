// Package htmltext содержит текстовые утилиты поверх goquery:
// очистка HTML, подсчёт слов, извлечение заголовков и абзацев.
package htmltext

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strip убирает разметку и возвращает текст со схлопнутыми пробелами.
// Содержимое script/style выбрасывается.
func Strip(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Collapse(html)
	}
	doc.Find("script, style, noscript").Remove()
	return Collapse(doc.Text())
}

// Collapse схлопывает последовательности пробельных символов в один пробел.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// WordCount считает слова в тексте после очистки разметки.
func WordCount(html string) int {
	stripped := Strip(html)
	if stripped == "" {
		return 0
	}
	return len(strings.Fields(stripped))
}

// FirstHeading возвращает текст первого заголовка h1-h3.
func FirstHeading(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	heading := doc.Find("h1, h2, h3").First()
	if heading.Length() == 0 {
		return "", false
	}
	text := Collapse(heading.Text())
	if text == "" {
		return "", false
	}
	return text, true
}

// FirstParagraph возвращает текст первого непустого абзаца.
func FirstParagraph(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	var found string
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := Collapse(s.Text())
		if text != "" {
			found = text
			return false
		}
		return true
	})
	return found, found != ""
}

// Truncate обрезает строку до limit рун, добавляя многоточие.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
