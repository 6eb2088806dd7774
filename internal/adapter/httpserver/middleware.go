package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/correlation"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.Header))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

// sentinelTypes maps domain sentinels that reach the HTTP layer unwrapped
// to their response class.
var sentinelTypes = []struct {
	err error
	typ apperrors.ErrorType
}{
	{domain.ErrUserNotFound, apperrors.TypeNotFound},
	{domain.ErrCategoryNotFound, apperrors.TypeNotFound},
	{domain.ErrProductNotFound, apperrors.TypeNotFound},
	{domain.ErrMediaNotFound, apperrors.TypeNotFound},
	{domain.ErrBlobNotFound, apperrors.TypeNotFound},
	{domain.ErrCouponNotFound, apperrors.TypeNotFound},
	{domain.ErrOrderNotFound, apperrors.TypeNotFound},
	{domain.ErrReviewNotFound, apperrors.TypeNotFound},
	{domain.ErrEmailTaken, apperrors.TypeConflict},
	{domain.ErrCategoryInUse, apperrors.TypeConflict},
	{domain.ErrSlugTaken, apperrors.TypeConflict},
	{domain.ErrSKUTaken, apperrors.TypeConflict},
	{domain.ErrMediaInUse, apperrors.TypeConflict},
	{domain.ErrCouponCodeTaken, apperrors.TypeConflict},
	{domain.ErrReviewExists, apperrors.TypeConflict},
	{domain.ErrOrderStatusChanged, apperrors.TypeConflict},
	{domain.ErrInvalidCredentials, apperrors.TypeUnauthorized},
	{domain.ErrPaymentUnavailable, apperrors.TypeExternal},
	{domain.ErrInsufficientStock, apperrors.TypeValidation},
}

// toStructured turns any handler error into an *apperrors.Error. Structured
// errors win over sentinels so services can attach context.
func toStructured(err error) *apperrors.Error {
	var structured *apperrors.Error
	if errors.As(err, &structured) {
		return structured
	}
	for _, s := range sentinelTypes {
		if errors.Is(err, s.err) {
			return &apperrors.Error{Type: s.typ, Message: s.err.Error(), Cause: err, Context: map[string]any{}}
		}
	}
	return apperrors.AsStructuredError(err)
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			return HandleError(c, err)
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if userID := c.Get(ctxUserID); userID != nil {
		attrs = append(attrs, "user_id", userID)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeUnauthorized, apperrors.TypeForbidden:
		slog.InfoContext(ctx, "Access denied", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := toStructured(err)
	logError(c, structuredErr)
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := "internal server error"
	if httpErr.Message != nil {
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
	}

	var errType apperrors.ErrorType
	switch httpErr.Code {
	case http.StatusBadRequest:
		errType = apperrors.TypeValidation
	case http.StatusUnauthorized:
		errType = apperrors.TypeUnauthorized
	case http.StatusForbidden:
		errType = apperrors.TypeForbidden
	case http.StatusNotFound:
		errType = apperrors.TypeNotFound
	case http.StatusConflict:
		errType = apperrors.TypeConflict
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		errType = apperrors.TypeExternal
	default:
		errType = apperrors.TypeInternal
	}

	err := &apperrors.Error{
		Type:    errType,
		Message: message,
		Context: make(map[string]any),
	}

	if httpErr.Internal != nil {
		err.Cause = httpErr.Internal
	}

	return err
}
