package handler

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/textproto"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

// testLogger returns a logger that discards all output
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(testLogger())})
}

type upload struct {
	field       string
	content     []byte
	contentType string
}

// createMultipartRequest builds a multipart body with form fields and files.
func createMultipartRequest(fields map[string]string, files ...upload) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}

	for i, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="sample`+string(rune('a'+i))+`.png"`)
		h.Set("Content-Type", f.contentType)

		part, err := writer.CreatePart(h)
		if err != nil {
			panic(err)
		}
		_, _ = part.Write(f.content)
	}

	_ = writer.Close()
	return body, writer.FormDataContentType()
}

// pngOf encodes a single channel frame as PNG.
func pngOf(frame imaging.RawFrame) []byte {
	img := image.NewGray(image.Rect(0, 0, frame.Width, frame.Height))
	copy(img.Pix, frame.Pix)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
