package media

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/media"
	"github.com/rajivgeraev/skillswap-api/internal/middleware"
)

// DirectUploader выдает подписанные параметры для загрузки напрямую из UI
type DirectUploader interface {
	UploadParams(folder string) (map[string]string, error)
}

// MediaService загрузка вложений
type MediaService struct {
	uploader media.Uploader
}

// NewMediaService создает новый экземпляр MediaService
func NewMediaService(uploader media.Uploader) *MediaService {
	return &MediaService{uploader: uploader}
}

// Upload принимает multipart поле file и возвращает описание вложения
func (s *MediaService) Upload(c fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return middleware.BadRequest(c, "Файл не передан")
	}
	if file.Size > media.MaxUploadSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": media.ErrTooLarge.Error()})
	}

	f, err := file.Open()
	if err != nil {
		return middleware.BadRequest(c, "Не удалось прочитать файл")
	}
	defer f.Close()

	ctx, cancel := db.GetContext()
	defer cancel()

	att, err := media.Attach(ctx, s.uploader, file.Filename, file.Header.Get("Content-Type"), file.Size, f)
	if errors.Is(err, media.ErrTooLarge) {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(att)
}

// UploadParams создаёт параметры для прямой загрузки, если хостинг это поддерживает
func (s *MediaService) UploadParams(c fiber.Ctx) error {
	direct, ok := s.uploader.(DirectUploader)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Прямая загрузка не поддерживается"})
	}
	params, err := direct.UploadParams(c.Query("folder"))
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(params)
}
