package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/htmltext"
)

// ErrEmptyBody возвращается, когда у элемента нет текста для обработки.
var ErrEmptyBody = errors.New("у элемента источника пустое тело")

// ErrMissingRef возвращается, когда у элемента нет идентификатора источника.
var ErrMissingRef = errors.New("у элемента источника нет идентификатора")

// Normalize приводит распарсенный элемент источника к каноническому RawItem.
// Чистая функция: хэш считается по очищенному от разметки тексту, поэтому
// различия только в форматировании не порождают ложных «новых» элементов.
func Normalize(payload domain.SourceItemPayload, feed domain.SourceFeed) (domain.RawItem, error) {
	item := domain.RawItem{
		SourceKind:  payload.Kind,
		FeedID:      payload.FeedID,
		Title:       strings.TrimSpace(payload.Title),
		PublishedAt: payload.PublishedAt,
	}

	switch payload.Kind {
	case domain.SourceYouTube:
		if payload.VideoID == "" {
			return domain.RawItem{}, ErrMissingRef
		}
		item.SourceRef = payload.VideoID
		body := strings.TrimSpace(payload.Transcript)
		if body == "" {
			body = strings.TrimSpace(payload.Description)
		}
		item.Body = body
		if payload.ThumbnailURL != "" {
			item.ImageCandidates = []string{payload.ThumbnailURL}
		}
	case domain.SourceRSS:
		if payload.URL == "" {
			return domain.RawItem{}, ErrMissingRef
		}
		item.SourceRef = payload.URL
		item.Body = payload.BodyHTML
		// При политике pexels_only картинки источника игнорируются.
		if payload.ImageURL != "" && feed.ImagePolicy != domain.ImagePolicyStockOnly {
			item.ImageCandidates = []string{payload.ImageURL}
		}
	default:
		return domain.RawItem{}, errors.New("неизвестный тип источника: " + string(payload.Kind))
	}

	normalized := htmltext.Strip(item.Body)
	if normalized == "" {
		return domain.RawItem{}, ErrEmptyBody
	}
	item.ContentHash = ContentHash(normalized)
	return item, nil
}

// ContentHash возвращает SHA-256 от нормализованного текста в hex.
func ContentHash(normalizedText string) string {
	sum := sha256.Sum256([]byte(normalizedText))
	return hex.EncodeToString(sum[:])
}
