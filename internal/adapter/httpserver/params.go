package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func uuidParam(c echo.Context, name string) (uuid.UUID, error) {
	return parseUUID(c.Param(name), name)
}

func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid id").WithField("field", field)
	}
	return id, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.ValidationError("invalid integer query parameter").WithField("param", name)
	}
	return n, nil
}

func queryInt64(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperrors.ValidationError("invalid integer query parameter").WithField("param", name)
	}
	return n, nil
}

func queryBool(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.ValidationError("invalid boolean query parameter").WithField("param", name)
	}
	return b, nil
}

func pageRequest(c echo.Context) (domain.PageRequest, error) {
	page, err := queryInt(c, "page")
	if err != nil {
		return domain.PageRequest{}, err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return domain.PageRequest{}, err
	}
	return domain.PageRequest{Page: page, Limit: limit}.Normalize(), nil
}

func bindJSON(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	return nil
}

func writeJSON(c echo.Context, status int, v any) error {
	if err := c.JSON(status, v); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func respondOK(c echo.Context) error {
	return writeJSON(c, http.StatusOK, map[string]string{"status": "ok"})
}
