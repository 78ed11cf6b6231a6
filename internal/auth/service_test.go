package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByEmailOrUsernameFn  func(ctx context.Context, email, username string) (*model.User, error)
	findCredentialsByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn                 func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error) {
	if m.findByEmailOrUsernameFn != nil {
		return m.findByEmailOrUsernameFn(ctx, email, username)
	}
	return nil, nil
}

func (m *mockUserRepo) FindCredentialsByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findCredentialsByEmailFn != nil {
		return m.findCredentialsByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

type mockHasher struct {
	hashFn    func(password string) (string, error)
	compareFn func(hash, password string) (bool, error)
}

func (m *mockHasher) Hash(password string) (string, error) {
	if m.hashFn != nil {
		return m.hashFn(password)
	}
	return "hashed:" + password, nil
}

func (m *mockHasher) Compare(hash, password string) (bool, error) {
	if m.compareFn != nil {
		return m.compareFn(hash, password)
	}
	return hash == "hashed:"+password, nil
}

type mockIssuer struct {
	issueFn func(userID, email string) (string, error)
}

func (m *mockIssuer) Issue(userID, email string) (string, error) {
	if m.issueFn != nil {
		return m.issueFn(userID, email)
	}
	return "token-for-" + userID, nil
}

// assertAPIError はエラーが指定コードとメッセージのAPIErrorであることを検証する。
func assertAPIError(t *testing.T, err error, code, message string) *model.APIError {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
	if apiErr.Message != message {
		t.Errorf("Message = %q, want %q", apiErr.Message, message)
	}
	return apiErr
}

// --- Register ---

func TestService_Register_Success(t *testing.T) {
	var created *model.User
	repo := &mockUserRepo{
		createFn: func(_ context.Context, user *model.User) error {
			created = user
			return nil
		},
	}
	svc := NewService(repo, &mockHasher{}, &mockIssuer{})

	result, err := svc.Register(context.Background(), RegisterInput{
		Username: "alice", Email: "alice@example.com", Password: "pw",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("expected user to be persisted")
	}
	if created.PasswordHash != "hashed:pw" {
		t.Errorf("persisted hash = %q, want %q", created.PasswordHash, "hashed:pw")
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Error("ID and CreatedAt should be set")
	}
	if result.Token != "token-for-"+created.ID {
		t.Errorf("Token = %q, want token for %q", result.Token, created.ID)
	}
	if result.User.PasswordHash != "" {
		t.Error("returned user must not carry the password hash")
	}
	if result.User.Username != "alice" || result.User.Email != "alice@example.com" {
		t.Errorf("User = %+v", result.User)
	}
}

func TestService_Register_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		input RegisterInput
	}{
		{"missing username", RegisterInput{Email: "a@example.com", Password: "pw"}},
		{"missing email", RegisterInput{Username: "a", Password: "pw"}},
		{"missing password", RegisterInput{Username: "a", Email: "a@example.com"}},
		{"all empty", RegisterInput{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockUserRepo{
				findByEmailOrUsernameFn: func(context.Context, string, string) (*model.User, error) {
					t.Fatal("store should not be consulted")
					return nil, nil
				},
			}
			svc := NewService(repo, &mockHasher{}, &mockIssuer{})

			_, err := svc.Register(context.Background(), tt.input)
			assertAPIError(t, err, model.ErrCodeValidation, "Please provide all required fields")
		})
	}
}

// 既存ユーザーとemailまたはusernameが重複する場合にCONFLICTとなることを検証
func TestService_Register_Duplicate(t *testing.T) {
	createCalled := false
	repo := &mockUserRepo{
		findByEmailOrUsernameFn: func(_ context.Context, email, username string) (*model.User, error) {
			return &model.User{ID: "existing", Email: email}, nil
		},
		createFn: func(context.Context, *model.User) error {
			createCalled = true
			return nil
		},
	}
	svc := NewService(repo, &mockHasher{}, &mockIssuer{})

	_, err := svc.Register(context.Background(), RegisterInput{Username: "bob", Email: "alice@example.com", Password: "pw"})
	assertAPIError(t, err, model.ErrCodeConflict, "User with this email or username already exists")
	if createCalled {
		t.Error("Create should not be called for a duplicate")
	}
}

// 同時登録でINSERT時に一意制約違反となった場合もCONFLICTとなることを検証
func TestService_Register_DuplicateOnInsert(t *testing.T) {
	repo := &mockUserRepo{
		createFn: func(context.Context, *model.User) error {
			return fmt.Errorf("failed to insert user: %w", repository.ErrDuplicate)
		},
	}
	svc := NewService(repo, &mockHasher{}, &mockIssuer{})

	_, err := svc.Register(context.Background(), RegisterInput{Username: "alice", Email: "alice@example.com", Password: "pw"})
	assertAPIError(t, err, model.ErrCodeConflict, "User with this email or username already exists")
}

func TestService_Register_InternalErrors(t *testing.T) {
	dbErr := errors.New("connection refused")
	tests := []struct {
		name   string
		repo   *mockUserRepo
		hasher *mockHasher
		issuer *mockIssuer
	}{
		{
			name: "lookup fails",
			repo: &mockUserRepo{findByEmailOrUsernameFn: func(context.Context, string, string) (*model.User, error) {
				return nil, dbErr
			}},
		},
		{
			name:   "hash fails",
			hasher: &mockHasher{hashFn: func(string) (string, error) { return "", dbErr }},
		},
		{
			name: "insert fails",
			repo: &mockUserRepo{createFn: func(context.Context, *model.User) error { return dbErr }},
		},
		{
			name:   "issue fails",
			issuer: &mockIssuer{issueFn: func(string, string) (string, error) { return "", dbErr }},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, hasher, issuer := tt.repo, tt.hasher, tt.issuer
			if repo == nil {
				repo = &mockUserRepo{}
			}
			if hasher == nil {
				hasher = &mockHasher{}
			}
			if issuer == nil {
				issuer = &mockIssuer{}
			}
			svc := NewService(repo, hasher, issuer)

			_, err := svc.Register(context.Background(), RegisterInput{Username: "a", Email: "a@example.com", Password: "pw"})
			apiErr := assertAPIError(t, err, model.ErrCodeInternal, "Error registering user")
			if !errors.Is(apiErr, dbErr) {
				t.Errorf("expected underlying error to be wrapped, got %v", apiErr.Err)
			}
		})
	}
}

// --- Login ---

func TestService_Login_Success(t *testing.T) {
	repo := &mockUserRepo{
		findCredentialsByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Username: "alice", Email: email, PasswordHash: "hashed:pw"}, nil
		},
	}
	svc := NewService(repo, &mockHasher{}, &mockIssuer{})

	result, err := svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Token != "token-for-user-1" {
		t.Errorf("Token = %q, want %q", result.Token, "token-for-user-1")
	}
	if result.User.PasswordHash != "" {
		t.Error("returned user must not carry the password hash")
	}
}

func TestService_Login_MissingFields(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockHasher{}, &mockIssuer{})

	for _, input := range []LoginInput{{Email: "a@example.com"}, {Password: "pw"}, {}} {
		_, err := svc.Login(context.Background(), input)
		assertAPIError(t, err, model.ErrCodeValidation, "Please provide email and password")
	}
}

// 存在しないemailとパスワード不一致が同一のエラーになることを検証
func TestService_Login_InvalidCredentials_Indistinguishable(t *testing.T) {
	repo := &mockUserRepo{
		findCredentialsByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			if email == "alice@example.com" {
				return &model.User{ID: "user-1", Email: email, PasswordHash: "hashed:pw"}, nil
			}
			return nil, nil
		},
	}
	svc := NewService(repo, &mockHasher{}, &mockIssuer{})

	_, unknownErr := svc.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "pw"})
	_, wrongErr := svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "nope"})

	a := assertAPIError(t, unknownErr, model.ErrCodeAuth, "Invalid credentials")
	b := assertAPIError(t, wrongErr, model.ErrCodeAuth, "Invalid credentials")
	if a.Error() != b.Error() {
		t.Errorf("errors differ: %q vs %q", a.Error(), b.Error())
	}
}

func TestService_Login_InternalErrors(t *testing.T) {
	dbErr := errors.New("timeout")

	svc := NewService(&mockUserRepo{
		findCredentialsByEmailFn: func(context.Context, string) (*model.User, error) { return nil, dbErr },
	}, &mockHasher{}, &mockIssuer{})
	_, err := svc.Login(context.Background(), LoginInput{Email: "a@example.com", Password: "pw"})
	assertAPIError(t, err, model.ErrCodeInternal, "Error logging in")

	svc = NewService(&mockUserRepo{
		findCredentialsByEmailFn: func(context.Context, string) (*model.User, error) {
			return &model.User{ID: "user-1", PasswordHash: "bad"}, nil
		},
	}, &mockHasher{compareFn: func(string, string) (bool, error) { return false, dbErr }}, &mockIssuer{})
	_, err = svc.Login(context.Background(), LoginInput{Email: "a@example.com", Password: "pw"})
	assertAPIError(t, err, model.ErrCodeInternal, "Error logging in")
}

// 実際のbcryptとJWTを組み合わせて登録からログインまで通ることを検証
func TestService_RegisterThenLogin_RealCollaborators(t *testing.T) {
	users := map[string]*model.User{}
	repo := &mockUserRepo{
		findByEmailOrUsernameFn: func(_ context.Context, email, username string) (*model.User, error) {
			for _, u := range users {
				if u.Email == email || u.Username == username {
					return u, nil
				}
			}
			return nil, nil
		},
		findCredentialsByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			if u, ok := users[email]; ok {
				copied := *u
				return &copied, nil
			}
			return nil, nil
		},
		createFn: func(_ context.Context, user *model.User) error {
			copied := *user
			users[user.Email] = &copied
			return nil
		},
	}
	tokens := NewTokenManager(TokenConfig{Secret: "s", ExpiresIn: time.Hour, Issuer: "taskman"})
	svc := NewService(repo, NewPasswordHasher(bcrypt.MinCost), tokens)

	reg, err := svc.Register(context.Background(), RegisterInput{Username: "alice", Email: "alice@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	login, err := svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	claims, err := tokens.Verify(login.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UserID != reg.User.ID {
		t.Errorf("claims.UserID = %q, want %q", claims.UserID, reg.User.ID)
	}
}
