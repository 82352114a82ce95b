package domain

import (
	"errors"
	"fmt"
)

// ErrDuplicateItem возвращается дедупликацией: элемент уже обработан.
// Это ожидаемый пропуск, а не сбой.
var ErrDuplicateItem = errors.New("элемент уже обработан")

// ErrDraftNotFound возвращается, если черновик не найден.
var ErrDraftNotFound = errors.New("черновик не найден")

// ErrFeedNotFound возвращается, если лента не найдена.
var ErrFeedNotFound = errors.New("лента не найдена")

// ErrSettingsMissing возвращается, если строка настроек не создана.
var ErrSettingsMissing = errors.New("строка настроек автоматизации отсутствует")

// GenerationError — сбой провайдера генерации. Transient означает,
// что попытку имеет смысл повторить в следующем цикле.
type GenerationError struct {
	Provider  string
	Transient bool
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("генерация (%s): %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ContentQualityError — сгенерированный контент не прошёл жёсткий порог
// качества (словарный минимум, нечитаемый заголовок). Повтор в рамках
// того же вызова бессмыслен.
type ContentQualityError struct {
	Reason string
}

func (e *ContentQualityError) Error() string {
	return "качество контента: " + e.Reason
}

// PublishError — сбой материализации статьи (изображение, слаг, хранилище).
// Движок решений переводит его в решение failed, не прерывая проход.
type PublishError struct {
	Stage string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("публикация (%s): %v", e.Stage, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
