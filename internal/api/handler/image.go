package handler

import (
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facegate/internal/camera"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

// readFrame extracts an image from the multipart "image" field, or from
// the raw body when the request is not multipart.
func readFrame(c *fiber.Ctx) (provider.Frame, error) {
	var (
		data        []byte
		contentType string
	)

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		file, err := c.FormFile("image")
		if err != nil {
			return provider.Frame{}, domain.ErrValidationFailed.WithError(errors.New("image is required"))
		}
		if file.Size > camera.MaxFrameSize {
			return provider.Frame{}, domain.ErrInvalidImage
		}

		f, err := file.Open()
		if err != nil {
			return provider.Frame{}, domain.ErrInvalidImage.WithError(err)
		}
		defer func() {
			_ = f.Close()
		}()

		data, err = io.ReadAll(io.LimitReader(f, camera.MaxFrameSize+1))
		if err != nil {
			return provider.Frame{}, domain.ErrInvalidImage.WithError(err)
		}
		contentType = file.Header.Get(fiber.HeaderContentType)
	} else {
		// The request body buffer is reused after the handler returns.
		data = append([]byte(nil), c.Body()...)
		contentType = c.Get(fiber.HeaderContentType)
	}

	contentType, err := camera.ValidateFrame(data, contentType)
	if err != nil {
		return provider.Frame{}, err
	}
	return provider.Frame{Data: data, ContentType: contentType}, nil
}
