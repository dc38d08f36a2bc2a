package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"meetup-app/internal/config"
	"meetup-app/internal/database"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownUser  = errors.New("unknown user")
)

// Service verifies bearer credentials presented by realtime clients. Tokens
// are issued elsewhere in the application; this service only checks them.
type Service struct {
	secret []byte
	issuer string
	users  database.UserRepository
}

// NewService builds a verifier. users may be nil, in which case a valid
// signature is enough and the user is not looked up.
func NewService(cfg config.JWTConfig, users database.UserRepository) *Service {
	return &Service{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		users:  users,
	}
}

func (s *Service) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyCredential checks tokenString and returns the user id it belongs to.
func (s *Service) VerifyCredential(ctx context.Context, tokenString string) (string, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", ErrMissingToken
	}

	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}

	userID, err := userIDFromClaims(claims)
	if err != nil {
		return "", err
	}

	if s.users != nil {
		if _, err := s.users.GetUserByID(ctx, userID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return "", fmt.Errorf("%w: %s", ErrUnknownUser, userID)
			}
			return "", fmt.Errorf("lookup user %s: %w", userID, err)
		}
	}

	return userID, nil
}

// userIDFromClaims accepts user_id as a string or an integral number, and
// falls back to the registered subject.
func userIDFromClaims(claims jwt.MapClaims) (string, error) {
	switch v := claims["user_id"].(type) {
	case string:
		if id := strings.TrimSpace(v); id != "" {
			return id, nil
		}
	case float64:
		if v > 0 && v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), nil
		}
	}

	if sub, err := claims.GetSubject(); err == nil && strings.TrimSpace(sub) != "" {
		return strings.TrimSpace(sub), nil
	}

	return "", fmt.Errorf("%w: no user id in token", ErrInvalidToken)
}
