// Package media загружает вложения на внешний хостинг и возвращает публичный URL.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/skillswap-api/internal/models"
)

// MaxUploadSize предельный размер вложения
const MaxUploadSize = 20 << 20

var ErrTooLarge = errors.New("attachment is too large")

// Uploader хостинг вложений
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// ObjectKey строит уникальный ключ объекта внутри папки
func ObjectKey(folder, name string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, path.Base(name))
	if base == "" || base == "." || base == "/" {
		base = "file"
	}
	return path.Join(folder, uuid.NewString()+"-"+base)
}

// KindOf определяет тип вложения по MIME типу
func KindOf(contentType string) models.AttachmentType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.AttachmentImage
	case strings.HasPrefix(contentType, "video/"):
		return models.AttachmentVideo
	default:
		return models.AttachmentDocument
	}
}

// Attach загружает файл и возвращает описание вложения для сообщения или обмена
func Attach(ctx context.Context, up Uploader, name, contentType string, size int64, r io.Reader) (models.Attachment, error) {
	if size > MaxUploadSize {
		return models.Attachment{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	url, err := up.Upload(ctx, name, contentType, io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return models.Attachment{}, err
	}
	return models.Attachment{
		ID:         uuid.NewString(),
		URL:        url,
		Type:       KindOf(contentType),
		Name:       name,
		Size:       size,
		UploadedAt: time.Now().UTC(),
	}, nil
}
