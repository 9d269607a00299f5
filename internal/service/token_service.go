package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"musclemate/internal/domain"
)

// TokenIssuer emite un token de sesion opaco a partir del usuario autenticado.
// El nucleo de identidad no interpreta el contenido del token.
type TokenIssuer interface {
	Issue(user domain.User) (string, error)
}

// JWTService implementa TokenIssuer con JWT firmados HS256 y ademas parsea
// access tokens para el middleware de transporte.
type JWTService struct {
	secret    []byte
	accessTTL time.Duration
	issuer    string
}

// Claims es el bundle de atributos que viaja dentro del token de sesion:
// identidad, perfil visible y la foto de los agregados de entrenamiento al
// momento del login.
type Claims struct {
	UserID          string  `json:"uid"`
	Name            string  `json:"name,omitempty"`
	LastName        string  `json:"last_name,omitempty"`
	Email           string  `json:"email"`
	City            string  `json:"city,omitempty"`
	State           string  `json:"state,omitempty"`
	Bio             string  `json:"bio,omitempty"`
	WorkoutCount    int     `json:"workout_count"`
	TotalTime       int64   `json:"total_time"`
	TotalWeight     float64 `json:"total_weight"`
	TotalCardioTime int64   `json:"total_cardio_time"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

func NewJWTService(secret string, accessTTL time.Duration) *JWTService {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	return &JWTService{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		issuer:    "musclemate",
	}
}

func (s *JWTService) Issue(user domain.User) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrJWTInvalid
	}
	now := time.Now().UTC()
	claims := Claims{
		UserID:          user.ID,
		Name:            user.Name,
		LastName:        user.LastName,
		Email:           user.Email,
		City:            user.City,
		State:           user.State,
		Bio:             user.Bio,
		WorkoutCount:    user.WorkoutCount,
		TotalTime:       user.TotalTime,
		TotalWeight:     user.TotalWeight,
		TotalCardioTime: user.TotalCardioTime,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseAccessToken valida firma, expiracion y emisor de un token de sesion.
func (s *JWTService) ParseAccessToken(tokenString string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrJWTInvalid
	}
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
