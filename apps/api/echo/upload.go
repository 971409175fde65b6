package echoapi

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/geoffroyotegbeye/codesens/core"
)

const uploadField = "image"

// imageTypes maps the accepted sniffed content types to file extensions.
var imageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type uploadApi struct {
	storage core.FileStorage
	maxSize int64
}

type UploadResponse struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

func registerUploadAPI(g *echo.Group, authed echo.MiddlewareFunc, opts *Options) {
	if opts.Storage == nil {
		return
	}
	api := uploadApi{storage: opts.Storage, maxSize: opts.Conf.Uploads.MaxSize}
	active := activeUserMiddleware(opts.UserSvc)

	ig := g.Group("/uploads/images", authed, active)
	ig.POST("", api.uploadImage, staffMiddleware())
	ig.DELETE("/:filename", api.deleteImage, adminMiddleware())
}

func imageError(msg string) error {
	return core.NewValidationError(nil, core.FieldError{Field: uploadField, Error: msg})
}

func (api *uploadApi) uploadImage(ctx echo.Context) error {
	fh, err := ctx.FormFile(uploadField)
	if err != nil {
		return imageError("this field is required")
	}
	if api.maxSize > 0 && fh.Size > api.maxSize {
		return imageError(fmt.Sprintf("the file must not exceed %d bytes", api.maxSize))
	}

	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return errors.Wrap(err, "reading upload")
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	ext, ok := imageTypes[contentType]
	if !ok {
		return imageError("only png, jpeg, gif and webp images are accepted")
	}

	name := uuid.New().String() + ext
	size, err := api.storage.Save(ctx.Request().Context(), name, io.MultiReader(bytes.NewReader(head), f))
	if err != nil {
		return errors.Wrap(err, "saving upload")
	}

	return ctx.JSON(http.StatusCreated, UploadResponse{
		URL:         api.storage.URL(name),
		Filename:    name,
		Size:        size,
		ContentType: contentType,
	})
}

func (api *uploadApi) deleteImage(ctx echo.Context) error {
	if err := api.storage.Delete(ctx.Request().Context(), ctx.Param("filename")); err != nil {
		return errors.Wrap(err, "deleting upload")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// serveUpload streams a stored file. Invalid names are reported as missing files.
func serveUpload(storage core.FileStorage) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		r, contentType, err := storage.Open(ctx.Request().Context(), ctx.Param("filename"))
		if err != nil {
			if errors.Cause(err) == core.ErrInvalidFileName {
				return core.ErrFileNotFound
			}
			return errors.Wrap(err, "opening upload")
		}
		defer r.Close()
		if contentType == "" {
			contentType = echo.MIMEOctetStream
		}
		ctx.Response().Header().Set(echo.HeaderXContentTypeOptions, "nosniff")
		ctx.Response().Header().Set("Cache-Control", "public, max-age=86400")
		return ctx.Stream(http.StatusOK, contentType, r)
	}
}
