package images

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore реализует domain.ImageStore на локальном диске.
// URL собирается из базового адреса, с которого статика раздаётся наружу.
type FileStore struct {
	dir     string
	baseURL string
}

// NewFileStore создаёт хранилище.
func NewFileStore(dir, baseURL string) *FileStore {
	return &FileStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// SaveImage сохраняет изображение и возвращает публичный URL.
// Имя файла дополняется хэшем содержимого, чтобы не затирать чужие файлы.
func (s *FileStore) SaveImage(_ context.Context, data []byte, filename string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("каталог хранилища: %w", err)
	}
	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:8]) + "_" + sanitize(filename)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("запись изображения: %w", err)
	}
	return s.baseURL + "/" + name, nil
}

// Owns сообщает, что URL уже указывает в это хранилище.
// Такие изображения не перекачиваются.
func (s *FileStore) Owns(url string) bool {
	return s.baseURL != "" && strings.HasPrefix(url, s.baseURL+"/")
}

func sanitize(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "image.jpg"
	}
	return b.String()
}
