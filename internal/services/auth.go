package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yungbote/undercurrent-backend/internal/data/repos"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
	apperr "github.com/yungbote/undercurrent-backend/internal/pkg/errors"
	"github.com/yungbote/undercurrent-backend/internal/platform/apierr"
	"github.com/yungbote/undercurrent-backend/internal/platform/ctxutil"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

const minPasswordLength = 8

type JWTClaims struct {
	jwt.RegisteredClaims
}

type AuthService interface {
	Register(ctx context.Context, email, name, password string) (*types.User, string, error)
	Login(ctx context.Context, email, password string) (*types.User, string, error)
	Me(ctx context.Context) (*types.User, error)
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	LogoutUser(ctx context.Context) error
	GetAccessTTL() time.Duration
}

type authService struct {
	log          *logger.Logger
	userRepo     repos.UserRepo
	jwtSecretKey string
	accessTTL    time.Duration
	now          func() time.Time
}

func NewAuthService(log *logger.Logger, userRepo repos.UserRepo, jwtSecretKey string, accessTTL time.Duration) AuthService {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	return &authService{
		log:          log.With("service", "AuthService"),
		userRepo:     userRepo,
		jwtSecretKey: jwtSecretKey,
		accessTTL:    accessTTL,
		now:          time.Now,
	}
}

func invalidInput(code, msg string) error {
	return apierr.New(http.StatusBadRequest, code, fmt.Errorf("%w: %s", apperr.ErrInvalidArgument, msg))
}

func (as *authService) Register(ctx context.Context, email, name, password string) (*types.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" {
		return nil, "", invalidInput("email_required", "an email is required to register")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, "", invalidInput("invalid_email", "email is not valid")
	}
	if len(password) < minPasswordLength {
		return nil, "", invalidInput("weak_password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	dbc := dbctx.New(ctx)
	exists, err := as.userRepo.EmailExists(dbc, email)
	if err != nil {
		return nil, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, "", apierr.New(http.StatusConflict, "email_taken", fmt.Errorf("%w: email is already in use", apperr.ErrConflict))
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	user, err := as.userRepo.Create(dbc, &types.User{ID: uuid.New(), Email: email, Name: name, Password: string(hashed)})
	if err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}
	tok, err := as.generateAccessToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("generate access token: %w", err)
	}
	as.log.Info("User registered", "user_id", user.ID)
	return user, tok, nil
}

func (as *authService) Login(ctx context.Context, email, password string) (*types.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, "", invalidInput("credentials_required", "email and password are required")
	}
	user, err := as.userRepo.GetByEmail(dbctx.New(ctx), email)
	if err != nil {
		return nil, "", fmt.Errorf("load user: %w", err)
	}
	badCreds := apierr.New(http.StatusUnauthorized, "invalid_credentials", fmt.Errorf("%w: invalid email or password", apperr.ErrUnauthorized))
	if user == nil {
		return nil, "", badCreds
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", badCreds
	}
	tok, err := as.generateAccessToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("generate access token: %w", err)
	}
	return user, tok, nil
}

func (as *authService) Me(ctx context.Context) (*types.User, error) {
	userID := ctxutil.UserID(ctx)
	if userID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", apperr.ErrUnauthorized)
	}
	user, err := as.userRepo.GetByID(dbctx.New(ctx), userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, apierr.New(http.StatusNotFound, "user_not_found", apperr.ErrNotFound)
	}
	return user, nil
}

func (as *authService) generateAccessToken(user *types.User) (string, error) {
	now := as.now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(as.jwtSecretKey))
}

// SetContextFromToken validates the bearer token and attaches the caller to
// the returned context.
func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	unauthorized := func(err error) error {
		return apierr.New(http.StatusUnauthorized, "invalid_token", fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err))
	}
	if strings.TrimSpace(tokenString) == "" {
		return ctx, unauthorized(errors.New("missing token"))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(as.jwtSecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(as.now))
	if err != nil {
		return ctx, unauthorized(err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, unauthorized(errors.New("invalid or expired token"))
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, unauthorized(fmt.Errorf("invalid subject: %w", err))
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: userID}), nil
}

// LogoutUser has nothing to revoke: access tokens are stateless and simply
// expire, so the client discarding its token ends the session.
func (as *authService) LogoutUser(ctx context.Context) error {
	if userID := ctxutil.UserID(ctx); userID != uuid.Nil {
		as.log.Info("User logged out", "user_id", userID)
	}
	return nil
}

func (as *authService) GetAccessTTL() time.Duration {
	return as.accessTTL
}
