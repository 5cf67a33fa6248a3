package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

const (
	maxImageSize = 10 * 1024 * 1024 // 10MB
	maxImages    = 20
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// extractImage decodes the single file uploaded under field.
func extractImage(c *fiber.Ctx, field string) (imaging.RawFrame, error) {
	file, err := c.FormFile(field)
	if err != nil {
		return imaging.RawFrame{}, domain.ErrValidationFailed.WithError(fmt.Errorf("%s is required", field))
	}
	return decodeUpload(file)
}

// extractImages decodes every file uploaded under field, in upload order.
func extractImages(c *fiber.Ctx, field string) ([]imaging.RawFrame, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}
	files := form.File[field]
	if len(files) == 0 {
		return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("%s is required", field))
	}
	if len(files) > maxImages {
		return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("at most %d images are accepted", maxImages))
	}

	frames := make([]imaging.RawFrame, 0, len(files))
	for i, file := range files {
		frame, err := decodeUpload(file)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func decodeUpload(file *multipart.FileHeader) (imaging.RawFrame, error) {
	if file.Size == 0 || file.Size > maxImageSize {
		return imaging.RawFrame{}, domain.ErrInvalidImage.WithError(fmt.Errorf("size %d out of range", file.Size))
	}

	contentType := file.Header.Get("Content-Type")
	if !validImageTypes[contentType] {
		return imaging.RawFrame{}, domain.ErrInvalidImage.WithError(errors.New("unsupported content type " + contentType))
	}

	f, err := file.Open()
	if err != nil {
		return imaging.RawFrame{}, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return imaging.RawFrame{}, domain.ErrInvalidImage.WithError(err)
	}
	return imaging.Decode(data)
}
