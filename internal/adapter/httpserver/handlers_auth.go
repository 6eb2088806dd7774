package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/ahsanhabibakik/rupomoti/internal/app"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	user, err := s.svc.Users.Register(c.Request().Context(), app.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	if err := s.startSession(c, user); err != nil {
		return err
	}
	slog.InfoContext(c.Request().Context(), "User registered", "user_id", user.ID)
	return writeJSON(c, http.StatusCreated, user)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	user, err := s.svc.Users.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	if err := s.startSession(c, user); err != nil {
		return err
	}
	slog.InfoContext(c.Request().Context(), "User logged in", "user_id", user.ID)
	return writeJSON(c, http.StatusOK, user)
}

func (s *Server) handleLogout(c echo.Context) error {
	if err := s.endSession(c); err != nil {
		return err
	}
	return respondOK(c)
}

func (s *Server) handleCSRFToken(c echo.Context) error {
	token, _ := c.Get("csrf").(string)
	return writeJSON(c, http.StatusOK, map[string]string{"csrf_token": token})
}

// --- Account ---

type profileRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleGetAccount(c echo.Context) error {
	user, err := userFromContext(c)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, user)
}

func (s *Server) handleUpdateAccount(c echo.Context) error {
	userID, _ := c.Get(ctxUserID).(uuid.UUID)
	var req profileRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	user, err := s.svc.Users.UpdateProfile(c.Request().Context(), userID, req.Name, req.Phone)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, user)
}

func (s *Server) handleChangePassword(c echo.Context) error {
	userID, _ := c.Get(ctxUserID).(uuid.UUID)
	var req passwordRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := s.svc.Users.ChangePassword(c.Request().Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return respondOK(c)
}
