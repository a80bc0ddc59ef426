package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 720 * time.Hour
)

type claims struct {
	jwt.StandardClaims
	Scopes string `json:"scopes"`
}

func accessTokenClaims(c Credentials, now time.Time) claims {
	return claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    "mediator",
			Subject:   c.ID.String(),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(AccessTokenTTL).Unix(),
		},
		Scopes: strings.Join(c.Scopes, " "),
	}
}

func signTokenClaims(claims jwt.Claims, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString([]byte(secret))
}

// CreateAccessToken signs a short lived token carrying the credentials
func CreateAccessToken(c Credentials, secret string) (string, error) {
	return signTokenClaims(accessTokenClaims(c, time.Now()), secret)
}

// CreateRefreshToken signs a long lived token identifying the user, without scopes
func CreateRefreshToken(c Credentials, secret string) (string, error) {
	now := time.Now()
	return signTokenClaims(jwt.StandardClaims{
		Issuer:    "mediator",
		Subject:   c.ID.String(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(RefreshTokenTTL).Unix(),
	}, secret)
}

// ReadToken verifies a token signed with secret and returns its credentials
func ReadToken(tokenString string, secret string) (Credentials, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return BlankCredentials, ErrInvalidToken
	}
	claims, ok := token.Claims.(*claims)
	if !ok {
		return BlankCredentials, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return BlankCredentials, ErrInvalidToken
	}
	scopes := []string{}
	if claims.Scopes != "" {
		scopes = strings.Split(claims.Scopes, " ")
	}
	return Credentials{ID: id, Scopes: scopes}, nil
}

// FromBearer reads the credentials of an Authorization header value. A missing header
// yields BlankCredentials without error.
func FromBearer(header string, secret string) (Credentials, error) {
	if header == "" {
		return BlankCredentials, nil
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return BlankCredentials, ErrInvalidToken
	}
	return ReadToken(strings.TrimSpace(token), secret)
}
