package usecase

import (
	"context"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// accesstokenの有効期限
const accessTokenTTL = 15 * time.Minute

// パスワード最小文字数
const passwordMinLength = 8

type AuthUsecase struct {
	userRepo  repo.UserRepository
	jwtSecret []byte
}

// DI
func NewAuthUsecase(userRepo repo.UserRepository, jwtSecret string) *AuthUsecase {
	return &AuthUsecase{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
	}
}

type RegisterInput struct {
	Email    string
	Password string
}

type RegisterOutput struct {
	User model.User `json:"user"`
}

type LoginInput struct {
	Email    string
	Password string
}

type LoginOutput struct {
	User        model.User `json:"user"`
	AccessToken string     `json:"access_token"`
	ExpiresIn   int        `json:"expires_in"`
}

// 会員登録
func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (RegisterOutput, error) {
	email := strings.TrimSpace(in.Email)

	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return RegisterOutput{}, NewHTTPError(http.StatusBadRequest, "invalid email format")
	}
	if len(in.Password) < passwordMinLength {
		return RegisterOutput{}, NewHTTPError(http.StatusBadRequest, "password too short")
	}

	// email重複チェック
	_, err := u.userRepo.FindByEmail(ctx, email)
	if err == nil {
		return RegisterOutput{}, NewHTTPError(http.StatusConflict, "email already exists")
	}
	if err != repo.ErrNotFound {
		return RegisterOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	// 平文は保存しない
	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return RegisterOutput{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	now := time.Now()
	user := &model.User{
		Email:        email,
		PasswordHash: string(hashed),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.userRepo.Create(ctx, user); err != nil {
		return RegisterOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return RegisterOutput{User: *user}, nil
}

// ログイン
func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (LoginOutput, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return LoginOutput{}, NewHTTPError(http.StatusBadRequest, "email and password required")
	}

	user, err := u.userRepo.FindByEmail(ctx, email)
	if err == repo.ErrNotFound {
		// 存在有無は悟らせない
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	token, err := u.issueAccessToken(user.ID, time.Now())
	if err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return LoginOutput{
		User:        user,
		AccessToken: token,
		ExpiresIn:   int(accessTokenTTL.Seconds()),
	}, nil
}

// HS256でアクセストークンを発行
func (u *AuthUsecase) issueAccessToken(userID int64, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(accessTokenTTL).Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(u.jwtSecret)
}
