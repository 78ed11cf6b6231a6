// Package auth はユーザー登録・ログイン、パスワードのハッシュ化、トークンの発行と検証を提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

const (
	msgRegisterMissingFields = "Please provide all required fields"
	msgUserExists            = "User with this email or username already exists"
	msgRegisterFailed        = "Error registering user"
	msgLoginMissingFields    = "Please provide email and password"
	msgInvalidCredentials    = "Invalid credentials"
	msgLoginFailed           = "Error logging in"
)

// CredentialHasher はパスワードのハッシュ化と照合のインターフェース。
type CredentialHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

// TokenIssuer はトークン発行のインターフェース。
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginInput はログインの入力。
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult は登録・ログイン成功時の結果。UserのPasswordHashは空にして返す。
type AuthResult struct {
	User  *model.User
	Token string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	hasher   CredentialHasher
	issuer   TokenIssuer
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, hasher CredentialHasher, issuer TokenIssuer) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		issuer:   issuer,
	}
}

// Register はユーザーを登録し、トークンを発行する。
// emailまたはusernameが既存ユーザーと重複する場合はCONFLICTを返す。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	if input.Username == "" || input.Email == "" || input.Password == "" {
		return nil, model.NewValidationError(msgRegisterMissingFields)
	}

	existing, err := s.userRepo.FindByEmailOrUsername(ctx, input.Email, input.Username)
	if err != nil {
		return nil, model.NewInternalError(msgRegisterFailed, err)
	}
	if existing != nil {
		return nil, model.NewConflictError(msgUserExists)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, model.NewInternalError(msgRegisterFailed, err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// 事前確認とINSERTの間に同時登録された場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewConflictError(msgUserExists)
		}
		return nil, model.NewInternalError(msgRegisterFailed, err)
	}

	token, err := s.issuer.Issue(user.ID, user.Email)
	if err != nil {
		return nil, model.NewInternalError(msgRegisterFailed, err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	user.PasswordHash = ""
	return &AuthResult{User: user, Token: token}, nil
}

// Login はメールアドレスとパスワードを照合し、トークンを発行する。
// ユーザーが存在しない場合とパスワード不一致の場合は同一のエラーを返す。
func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	if input.Email == "" || input.Password == "" {
		return nil, model.NewValidationError(msgLoginMissingFields)
	}

	user, err := s.userRepo.FindCredentialsByEmail(ctx, input.Email)
	if err != nil {
		return nil, model.NewInternalError(msgLoginFailed, err)
	}
	if user == nil {
		return nil, model.NewAuthError(msgInvalidCredentials)
	}

	ok, err := s.hasher.Compare(user.PasswordHash, input.Password)
	if err != nil {
		return nil, model.NewInternalError(msgLoginFailed, err)
	}
	if !ok {
		return nil, model.NewAuthError(msgInvalidCredentials)
	}

	token, err := s.issuer.Issue(user.ID, user.Email)
	if err != nil {
		return nil, model.NewInternalError(msgLoginFailed, err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))

	user.PasswordHash = ""
	return &AuthResult{User: user, Token: token}, nil
}

// compile-time interface check
var (
	_ CredentialHasher = (*PasswordHasher)(nil)
	_ TokenIssuer      = (*TokenManager)(nil)
)
