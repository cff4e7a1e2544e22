package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// JWT signs and verifies HS256 bearer tokens whose subject is the owner id.
// Token issuance normally belongs to the identity provider; Sign exists for
// the agent and for tests.
type JWT struct {
	secret []byte
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret)}
}

func (j *JWT) Sign(ownerID int64, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": ownerID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(j.secret)
}

// Verify parses a token and returns the owner id it identifies.
func (j *JWT) Verify(tokenStr string) (int64, error) {
	t, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})
	if err != nil || !t.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}

	// Our own tokens carry a numeric subject (float64 after JSON decoding),
	// but RFC 7519 makes sub a string, so accept both forms.
	var id int64
	switch sub := claims["sub"].(type) {
	case float64:
		id = int64(sub)
	case string:
		parsed, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return 0, ErrInvalidToken
		}
		id = parsed
	default:
		return 0, ErrInvalidToken
	}
	if id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}
