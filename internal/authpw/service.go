// Package authpw provides local email/password accounts for deployments
// without Firebase Auth. Accounts live in the "users" collection keyed by
// normalised email.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"screenplay/api/internal/auth"
	"screenplay/api/internal/logger"
	"screenplay/api/internal/screenplay"
	"screenplay/api/internal/store"
	"screenplay/api/internal/util"
)

const CollectionUsers = "users"

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// User is the stored account.
type User struct {
	ID           string    `json:"id" firestore:"id"`
	Email        string    `json:"email" firestore:"email"`
	DisplayName  string    `json:"displayName" firestore:"displayName"`
	PasswordHash string    `json:"passwordHash" firestore:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt" firestore:"createdAt"`
}

func (u User) Identity() auth.Identity {
	return auth.Identity{UID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
}

// Service provides email/password authentication
type Service struct {
	store  store.Store
	cost   int
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Service)

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.logger = logger.OrNop(log).Named("authpw") }
}

func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		cost:   bcrypt.DefaultCost,
		now:    func() time.Time { return time.Now().UTC() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// SignUp creates a new account. Email uniqueness is checked before the
// write; two concurrent sign-ups for one address may both pass the check
// and the later write wins.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (auth.Identity, error) {
	email := screenplay.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") || req.Password == "" {
		return auth.Identity{}, fmt.Errorf("sign up: %w: email and password are required", screenplay.ErrInvalidInput)
	}
	if len(req.Password) < 8 {
		return auth.Identity{}, fmt.Errorf("sign up: %w: password must be at least 8 characters", screenplay.ErrInvalidInput)
	}

	_, err := s.store.Get(ctx, CollectionUsers, email)
	if err == nil {
		return auth.Identity{}, ErrEmailTaken
	}
	if !errors.Is(err, store.ErrNotFound) {
		return auth.Identity{}, fmt.Errorf("sign up: %w: %w", screenplay.ErrStore, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}
	user := User{
		ID:           util.NewID("usr"),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.store.Set(ctx, CollectionUsers, email, user); err != nil {
		return auth.Identity{}, fmt.Errorf("create user: %w: %w", screenplay.ErrStore, err)
	}
	s.logger.Info("user signed up", zap.String("user_id", user.ID))
	return user.Identity(), nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn checks the password. Unknown emails and wrong passwords return the
// same error.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (auth.Identity, error) {
	email := screenplay.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return auth.Identity{}, fmt.Errorf("sign in: %w: email and password are required", screenplay.ErrInvalidInput)
	}

	doc, err := s.store.Get(ctx, CollectionUsers, email)
	if errors.Is(err, store.ErrNotFound) {
		return auth.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return auth.Identity{}, fmt.Errorf("sign in: %w: %w", screenplay.ErrStore, err)
	}
	var user User
	if err := doc.DataTo(&user); err != nil {
		return auth.Identity{}, fmt.Errorf("decode user: %w: %w", screenplay.ErrStore, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return auth.Identity{}, ErrInvalidCredentials
	}
	return user.Identity(), nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, email, current, next string) error {
	if _, err := s.SignIn(ctx, SignInRequest{Email: email, Password: current}); err != nil {
		return err
	}
	if len(next) < 8 {
		return fmt.Errorf("change password: %w: password must be at least 8 characters", screenplay.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = s.store.Update(ctx, CollectionUsers, screenplay.NormalizeEmail(email),
		store.Set([]string{"passwordHash"}, string(hash)))
	if err != nil {
		return fmt.Errorf("change password: %w: %w", screenplay.ErrStore, err)
	}
	return nil
}
