package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	apperrors "github.com/yourusername/practice-api/internal/pkg/errors"
)

// JWTService проверяет и выпускает access-токены.
// Токены выпускает внешний сервис аккаунтов с тем же секретом; здесь
// Generate используется в основном для тестов и локальной разработки.
type JWTService struct {
	secret        []byte
	expirationHrs int
}

// Claims — полезная нагрузка access-токена
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// NewJWTService создает новый сервис JWT
func NewJWTService(secret string, expirationHrs int) (*JWTService, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	if expirationHrs <= 0 {
		expirationHrs = 24
	}
	return &JWTService{
		secret:        []byte(secret),
		expirationHrs: expirationHrs,
	}, nil
}

// GenerateToken выпускает подписанный токен для пользователя
func (s *JWTService) GenerateToken(userID uint, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.expirationHrs) * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken проверяет подпись и срок действия токена
func (s *JWTService) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", apperrors.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, apperrors.ErrUnauthorized
	}
	return claims, nil
}
