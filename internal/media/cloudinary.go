package media

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/rajivgeraev/skillswap-api/internal/config"
)

// Cloudinary загружает вложения в Cloudinary
type Cloudinary struct {
	cld *cloudinary.Cloudinary
	cfg config.CloudinaryConfig
	now func() time.Time
}

// NewCloudinary создает новый экземпляр Cloudinary
func NewCloudinary(cfg config.CloudinaryConfig) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации Cloudinary: %w", err)
	}
	return &Cloudinary{cld: cld, cfg: cfg, now: time.Now}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	key := ObjectKey("", name)
	resp, err := c.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		PublicID:     key,
		Folder:       c.cfg.UploadFolder,
		ResourceType: "auto",
	})
	if err != nil {
		return "", fmt.Errorf("ошибка загрузки в Cloudinary: %w", err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("ошибка загрузки в Cloudinary: %s", resp.Error.Message)
	}
	return resp.SecureURL, nil
}

// UploadParams создаёт подписанные параметры для загрузки напрямую из UI
func (c *Cloudinary) UploadParams(folder string) (map[string]string, error) {
	if folder == "" {
		folder = c.cfg.UploadFolder
	}
	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	params := url.Values{
		"timestamp": {timestamp},
		"folder":    {folder},
	}
	signature, err := api.SignParameters(params, c.cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("ошибка подписи параметров: %w", err)
	}
	return map[string]string{
		"timestamp":     timestamp,
		"signature":     signature,
		"folder":        folder,
		"api_key":       c.cfg.APIKey,
		"cloud_name":    c.cfg.CloudName,
		"upload_preset": c.cfg.UploadPreset,
	}, nil
}
