package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/warp/clubportal/generic"
)

// Claims identify a signed-in session. RegisteredClaims.ID is the session
// ID used for revocation.
type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Type  string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// TempClaims are short-lived single-purpose tokens.
type TempClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Type  string `json:"type"` // "password_reset"
	jwt.RegisteredClaims
}

const (
	tokenTypeReset = "password_reset"
	resetTokenTTL  = 30 * time.Minute
)

type JWTManager struct {
	Secret     []byte
	Issuer     string
	Expiration time.Duration
	Clock      generic.Clock
}

func NewJWTManager(secret, issuer string, expirationHours int) *JWTManager {
	if expirationHours <= 0 {
		expirationHours = 24
	}
	return &JWTManager{
		Secret:     []byte(secret),
		Issuer:     issuer,
		Expiration: time.Duration(expirationHours) * time.Hour,
		Clock:      generic.SystemClock{},
	}
}

func (j *JWTManager) registered(ttl time.Duration) jwt.RegisteredClaims {
	now := j.Clock.Now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    j.Issuer,
	}
}

// GenerateToken creates a session token for an identity
func (j *JWTManager) GenerateToken(uid, email string) (string, *Claims, error) {
	claims := &Claims{UID: uid, Email: email, RegisteredClaims: j.registered(j.Expiration)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.Secret)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// ValidateToken verifies a session token and returns the claims
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := j.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != "" {
		return nil, fmt.Errorf("%s token used as session: %w", claims.Type, generic.ErrInvalidToken)
	}
	return claims, nil
}

// GenerateResetToken creates a password-reset token (30 minutes)
func (j *JWTManager) GenerateResetToken(uid, email string) (string, error) {
	claims := &TempClaims{UID: uid, Email: email, Type: tokenTypeReset, RegisteredClaims: j.registered(resetTokenTTL)}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.Secret)
}

// ValidateResetToken verifies a password-reset token and returns the claims
func (j *JWTManager) ValidateResetToken(tokenString string) (*TempClaims, error) {
	claims := &TempClaims{}
	if err := j.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeReset {
		return nil, fmt.Errorf("wrong token type %q: %w", claims.Type, generic.ErrInvalidToken)
	}
	return claims, nil
}

func (j *JWTManager) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return j.Secret, nil
	}, jwt.WithTimeFunc(j.Clock.Now))
	if err != nil {
		return fmt.Errorf("%w: %v", generic.ErrInvalidToken, err)
	}
	if !token.Valid {
		return generic.ErrInvalidToken
	}
	return nil
}
