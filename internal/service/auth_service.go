package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ciltra/ciltra-backend/internal/config"
	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials covers unknown accounts and wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// TokenType distinguishes candidate vs examiner tokens.
type TokenType string

const (
	TokenTypeCandidate TokenType = "candidate"
	TokenTypeExaminer  TokenType = "examiner"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	UserID    int       `json:"user_id"`
}

// CandidateStore reads candidate accounts for authentication.
type CandidateStore interface {
	GetByEmail(ctx context.Context, email string) (*model.Candidate, error)
}

// ExaminerStore reads examiner accounts for authentication.
type ExaminerStore interface {
	GetByEmail(ctx context.Context, email string) (*model.Examiner, error)
}

// AuthService handles password checks and JWT issuance for both account
// kinds.
type AuthService struct {
	cfg        *config.Config
	candidates CandidateStore
	examiners  ExaminerStore
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, candidates CandidateStore, examiners ExaminerStore) *AuthService {
	return &AuthService{cfg: cfg, candidates: candidates, examiners: examiners}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// LoginCandidate authenticates a candidate and returns a signed JWT.
func (s *AuthService) LoginCandidate(ctx context.Context, email, password string) (string, *model.Candidate, error) {
	candidate, err := s.candidates.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("get candidate: %w", err)
	}
	if err := s.CheckPassword(candidate.PasswordHash, password); err != nil {
		return "", nil, err
	}

	token, err := s.generateToken(TokenTypeCandidate, candidate.ID)
	if err != nil {
		return "", nil, err
	}
	return token, candidate, nil
}

// LoginExaminer authenticates an examiner and returns a signed JWT.
func (s *AuthService) LoginExaminer(ctx context.Context, email, password string) (string, *model.Examiner, error) {
	examiner, err := s.examiners.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("get examiner: %w", err)
	}
	if err := s.CheckPassword(examiner.PasswordHash, password); err != nil {
		return "", nil, err
	}

	token, err := s.generateToken(TokenTypeExaminer, examiner.ID)
	if err != nil {
		return "", nil, err
	}
	return token, examiner, nil
}

func (s *AuthService) generateToken(kind TokenType, userID int) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: kind,
		UserID:    userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
