package httpserver

import (
	"net/http"
	"strconv"

	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

const mediaCacheControl = "public, max-age=31536000, immutable"

// handleServeMedia streams a stored image. Media bytes never change for an
// id, so responses are cacheable forever.
func (s *Server) handleServeMedia(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	media, rc, err := s.svc.Media.Open(c.Request().Context(), id)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	c.Response().Header().Set("Cache-Control", mediaCacheControl)
	if media.Size > 0 {
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(media.Size, 10))
	}
	return c.Stream(http.StatusOK, media.ContentType, rc)
}

func (s *Server) handleUploadMedia(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return apperrors.ValidationError("file is required").WithField("field", "file")
	}
	f, err := fh.Open()
	if err != nil {
		return apperrors.ValidationError("could not read upload").WithField("field", "file")
	}
	defer func() { _ = f.Close() }()

	media, err := s.svc.Media.Upload(c.Request().Context(), fh.Filename, c.FormValue("alt"), f)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, media)
}

func (s *Server) handleListMedia(c echo.Context) error {
	page, err := pageRequest(c)
	if err != nil {
		return err
	}
	media, err := s.svc.Media.List(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, media)
}

func (s *Server) handleDeleteMedia(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Media.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
