package httpserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
)

const (
	sessionName      = "rupomoti-session"
	sessionKeyUserID = "user_id"
	sessionKeyCartID = "cart_id"

	ctxUserID   = "userID"
	ctxUserRole = "userRole"
	ctxUser     = "user"
)

func (s *Server) session(c echo.Context) *sessions.Session {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		// A cookie signed with a rotated secret decodes as an error but still
		// yields a fresh session.
		slog.Debug("Discarding unreadable session", "error", err)
	}
	return session
}

func sessionUUID(session *sessions.Session, key string) (uuid.UUID, bool) {
	raw, ok := session.Values[key].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// cartID returns the session's cart id, creating and persisting one when the
// caller is about to write to the cart.
func (s *Server) cartID(c echo.Context, create bool) (uuid.UUID, bool, error) {
	session := s.session(c)
	if id, ok := sessionUUID(session, sessionKeyCartID); ok {
		return id, true, nil
	}
	if !create {
		return uuid.Nil, false, nil
	}

	id := uuid.New()
	session.Values[sessionKeyCartID] = id.String()
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return uuid.Nil, false, apperrors.InternalError("failed to save session", err)
	}
	return id, true, nil
}

// startSession regenerates the session for user, carrying the cart over.
func (s *Server) startSession(c echo.Context, user *domain.User) error {
	old := s.session(c)
	cartID, hasCart := sessionUUID(old, sessionKeyCartID)

	old.Options.MaxAge = -1
	if err := old.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to expire session", err)
	}

	session, err := s.sessionStore.New(c.Request(), sessionName)
	if err != nil {
		slog.Debug("Creating fresh session", "error", err)
	}
	session.Values[sessionKeyUserID] = user.ID.String()
	if hasCart {
		session.Values[sessionKeyCartID] = cartID.String()
	}
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}
	return nil
}

func (s *Server) endSession(c echo.Context) error {
	session := s.session(c)
	session.Values = map[any]any{}
	session.Options.MaxAge = -1
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return fmt.Errorf("failed to expire session: %w", err)
	}
	return nil
}

// currentUser loads the logged-in user, or returns nil for guests.
func (s *Server) currentUser(c echo.Context) (*domain.User, error) {
	session := s.session(c)
	userID, ok := sessionUUID(session, sessionKeyUserID)
	if !ok {
		return nil, nil
	}

	user, err := s.svc.Users.Get(c.Request().Context(), userID)
	if errors.Is(err, domain.ErrUserNotFound) || (err == nil && !user.Active) {
		slog.Warn("Session references unknown or disabled user, invalidating", "user_id", userID)
		if err := s.endSession(c); err != nil {
			return nil, apperrors.InternalError("failed to clear session", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.InternalError("failed to load session user", err)
	}
	return user, nil
}

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := s.currentUser(c)
		if err != nil {
			return err
		}
		if user == nil {
			return apperrors.UnauthorizedError("authentication required")
		}

		c.Set(ctxUserID, user.ID)
		c.Set(ctxUserRole, user.Role)
		c.Set(ctxUser, user)
		return next(c)
	}
}

// requireRole must run after requireAuth.
func requireRole(min domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(ctxUserRole).(domain.Role)
			if !role.AtLeast(min) {
				return apperrors.ForbiddenError("insufficient role").WithField("required", string(min))
			}
			return next(c)
		}
	}
}

func userFromContext(c echo.Context) (*domain.User, error) {
	user, ok := c.Get(ctxUser).(*domain.User)
	if !ok {
		return nil, apperrors.InternalError("missing user in context", nil)
	}
	return user, nil
}

// optionalUserID is used by routes open to guests that still attribute
// activity to a logged-in user.
func (s *Server) optionalUserID(c echo.Context) (*uuid.UUID, error) {
	user, err := s.currentUser(c)
	if err != nil || user == nil {
		return nil, err
	}
	return &user.ID, nil
}
