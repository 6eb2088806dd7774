package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/password"
	"github.com/google/uuid"
)

type RegisterInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type UserService struct {
	users  domain.UserRepository
	hasher *password.Hasher
}

func NewUserService(users domain.UserRepository, hasher *password.Hasher) *UserService {
	return &UserService{users: users, hasher: hasher}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	return s.create(ctx, in, domain.RoleCustomer)
}

func (s *UserService) create(ctx context.Context, in RegisterInput, role domain.Role) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	if !validEmail(email) {
		return nil, apperrors.ValidationError("email is not valid").WithField("field", "email")
	}
	name := strings.TrimSpace(in.Name)
	if err := requireLength("name", name, 1, 100); err != nil {
		return nil, err
	}
	phone, err := optionalPhone(in.Phone)
	if err != nil {
		return nil, err
	}
	hash, err := s.hash(in.Password, "password")
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Email:        email,
		Name:         name,
		Phone:        phone,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "User registered", "user_id", u.ID.String(), "role", role)
	return u, nil
}

// Authenticate returns ErrInvalidCredentials for an unknown email, a wrong
// password and an inactive account alike. Unknown emails still pay for a
// bcrypt comparison.
func (s *UserService) Authenticate(ctx context.Context, email, plain string) (*domain.User, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hash := ""
	if u != nil {
		hash = u.PasswordHash
	}
	cmpErr := s.hasher.Compare(hash, plain)
	if cmpErr != nil && !errors.Is(cmpErr, password.ErrMismatch) {
		return nil, cmpErr
	}

	if u == nil || cmpErr != nil || !u.Active {
		return nil, domain.ErrInvalidCredentials
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, name, phone string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	if err := requireLength("name", name, 1, 100); err != nil {
		return nil, err
	}
	normalized, err := optionalPhone(phone)
	if err != nil {
		return nil, err
	}
	return s.users.UpdateProfile(ctx, id, name, normalized)
}

func (s *UserService) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(u.PasswordHash, current); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return apperrors.ValidationError("current password is incorrect").WithField("field", "current_password")
		}
		return err
	}
	hash, err := s.hash(next, "new_password")
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Password changed", "user_id", id.String())
	return nil
}

func (s *UserService) hash(plain, field string) (string, error) {
	hash, err := s.hasher.Hash(plain)
	if errors.Is(err, password.ErrTooShort) || errors.Is(err, password.ErrTooLong) {
		return "", apperrors.ValidationError(err.Error()).WithField("field", field)
	}
	return hash, err
}

func (s *UserService) List(ctx context.Context, f domain.UserFilter) (domain.Page[domain.User], error) {
	if f.Role != "" && !f.Role.Valid() {
		return domain.Page[domain.User]{}, apperrors.ValidationError("unknown role").WithField("field", "role")
	}
	f.Query = strings.TrimSpace(f.Query)
	f.PageRequest = f.PageRequest.Normalize()
	users, total, err := s.users.List(ctx, f)
	if err != nil {
		return domain.Page[domain.User]{}, err
	}
	return domain.NewPage(users, total, f.PageRequest), nil
}

// SetRole changes another user's role. Only admins may call it, never on
// themselves, and the last active admin cannot be demoted.
func (s *UserService) SetRole(ctx context.Context, actor *domain.User, id uuid.UUID, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, apperrors.ValidationError("unknown role").WithField("field", "role")
	}
	target, err := s.guardAdminChange(ctx, actor, id, "change your own role")
	if err != nil {
		return nil, err
	}
	if target.Role == role {
		return target, nil
	}
	if target.Role == domain.RoleAdmin && target.Active {
		if err := s.requireAnotherAdmin(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.users.SetRole(ctx, id, role); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "User role changed", "user_id", id.String(), "from", target.Role, "to", role, "actor_id", actor.ID.String())
	target.Role = role
	return target, nil
}

// SetActive enables or disables another user's account under the same
// rules as SetRole.
func (s *UserService) SetActive(ctx context.Context, actor *domain.User, id uuid.UUID, active bool) (*domain.User, error) {
	target, err := s.guardAdminChange(ctx, actor, id, "deactivate yourself")
	if err != nil {
		return nil, err
	}
	if target.Active == active {
		return target, nil
	}
	if !active && target.Role == domain.RoleAdmin {
		if err := s.requireAnotherAdmin(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.users.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "User active flag changed", "user_id", id.String(), "active", active, "actor_id", actor.ID.String())
	target.Active = active
	return target, nil
}

func (s *UserService) guardAdminChange(ctx context.Context, actor *domain.User, id uuid.UUID, selfAction string) (*domain.User, error) {
	if actor == nil || actor.Role != domain.RoleAdmin {
		return nil, apperrors.ForbiddenError("admin role required")
	}
	if actor.ID == id {
		return nil, apperrors.ConflictError("you cannot " + selfAction)
	}
	return s.users.GetByID(ctx, id)
}

func (s *UserService) requireAnotherAdmin(ctx context.Context) error {
	n, err := s.users.CountActiveAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperrors.ConflictError("at least one active admin must remain")
	}
	return nil
}

// CreateAdmin creates an admin account, or promotes and reactivates the
// existing account with that email and resets its password.
func (s *UserService) CreateAdmin(ctx context.Context, email, name, plain string) (*domain.User, error) {
	existing, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}
	if existing == nil {
		return s.create(ctx, RegisterInput{Email: email, Name: name, Password: plain}, domain.RoleAdmin)
	}

	hash, err := s.hash(plain, "password")
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdatePassword(ctx, existing.ID, hash); err != nil {
		return nil, err
	}
	if err := s.users.SetRole(ctx, existing.ID, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.users.SetActive(ctx, existing.ID, true); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Existing user promoted to admin", "user_id", existing.ID.String())
	existing.Role = domain.RoleAdmin
	existing.Active = true
	return existing, nil
}

func optionalPhone(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	phone, ok := normalizePhone(raw)
	if !ok {
		return "", apperrors.ValidationError("phone must be a Bangladeshi mobile number").WithField("field", "phone")
	}
	return phone, nil
}
