package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"autonews-pipeline/internal/infra/metrics"
)

const maxImageBytes = 10 << 20

// ErrNotAnImage возвращается, когда сервер отдал 200, но тело не является
// изображением (например, HTML-страница ошибки).
var ErrNotAnImage = errors.New("ответ не является изображением")

// headerSets перебираются по очереди: часть CDN отдаёт картинку только
// с «браузерными» заголовками или другим Referer.
var headerSets = []map[string]string{
	{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		"Accept":     "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
	},
	{
		"User-Agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Accept":     "image/*,*/*;q=0.8",
		"Referer":    "https://www.google.com/",
	},
}

// Fetcher скачивает изображения с проверкой сигнатуры.
type Fetcher struct {
	client *http.Client
}

// NewFetcher создаёт загрузчик с ограниченным таймаутом.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch скачивает изображение, пробуя альтернативные наборы заголовков.
// Принимаются только байты с известной сигнатурой изображения.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for _, headers := range headerSets {
		data, err := f.fetchOnce(ctx, url, headers)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	metrics.ImageFetchFailures.Inc()
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("images", "fetch", "image", start, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("статус %d при загрузке изображения", resp.StatusCode)
		metrics.ObserveNetworkRequest("images", "fetch", "image", start, err)
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	metrics.ObserveNetworkRequest("images", "fetch", "image", start, err)
	if err != nil {
		return nil, err
	}
	if !ValidImage(data) {
		return nil, ErrNotAnImage
	}
	return data, nil
}

// ValidImage проверяет магические байты JPEG, PNG, GIF и WebP.
func ValidImage(data []byte) bool {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return true
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return true
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return true
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return true
	}
	return false
}
