package auth

import (
	"context"
	"testing"
	"time"

	"github.com/GabrielCarpr/mediator/errors"
	"github.com/GabrielCarpr/mediator/transport"
	jwt "github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAccessToken(t *testing.T) {
	ID := uuid.New()
	creds := Credentials{[]string{"hello", "world"}, ID}
	token, err := CreateAccessToken(creds, "secret")
	require.NoError(t, err)

	creds, err = ReadToken(token, "secret")

	require.NoError(t, err)
	assert.Equal(t, ID, creds.ID)
	assert.Equal(t, []string{"hello", "world"}, creds.Scopes)
}

func TestRefreshTokenHasNoScopes(t *testing.T) {
	ID := uuid.New()
	token, err := CreateRefreshToken(Credentials{[]string{"admin:*"}, ID}, "secret")
	require.NoError(t, err)

	creds, err := ReadToken(token, "secret")

	require.NoError(t, err)
	assert.Equal(t, ID, creds.ID)
	assert.Empty(t, creds.Scopes)
}

func TestCheckExpiredToken(t *testing.T) {
	claims := claims{StandardClaims: jwt.StandardClaims{
		Issuer:    "users",
		Subject:   uuid.NewString(),
		ExpiresAt: time.Now().Add(-2 * time.Minute).Unix(),
	}}
	res, err := signTokenClaims(claims, "secret")
	require.NoError(t, err)

	creds, err := ReadToken(res, "secret")

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, uuid.Nil, creds.ID)
}

func TestCheckTokenIncorrectKey(t *testing.T) {
	token, err := CreateAccessToken(Credentials{[]string{"a"}, uuid.New()}, "secret")
	require.NoError(t, err)

	_, err = ReadToken(token, "other")

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenSubjectMustBeID(t *testing.T) {
	res, err := signTokenClaims(jwt.StandardClaims{Subject: "hello"}, "secret")
	require.NoError(t, err)

	_, err = ReadToken(res, "secret")

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFromBearer(t *testing.T) {
	ID := uuid.New()
	token, err := CreateAccessToken(Credentials{[]string{"a"}, ID}, "secret")
	require.NoError(t, err)

	creds, err := FromBearer("Bearer "+token, "secret")
	require.NoError(t, err)
	assert.Equal(t, ID, creds.ID)

	creds, err = FromBearer("", "secret")
	require.NoError(t, err)
	assert.False(t, creds.Valid())

	_, err = FromBearer("Basic abc", "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCredentialsContext(t *testing.T) {
	ID := uuid.New()
	ctx := TestCtx(ID, "users:read")

	creds := GetCredentials(ctx)

	assert.Equal(t, ID, creds.ID)
	assert.Equal(t, []string{"users:read", UserScope(ID)}, creds.Scopes)
	assert.True(t, IsUser(ctx, ID))
	assert.False(t, IsUser(ctx, uuid.New()))
	assert.False(t, IsUser(context.Background(), ID))
	assert.Equal(t, BlankCredentials, GetCredentials(context.Background()))
}

func TestEnforce(t *testing.T) {
	ID := uuid.New()
	cases := []struct {
		name     string
		held     []string
		required [][]string
		allowed  bool
	}{
		{"nothing required", nil, nil, true},
		{"exact scope", []string{"users:read"}, [][]string{{"users:read"}}, true},
		{"missing scope", []string{"users:read"}, [][]string{{"users:write"}}, false},
		{"wildcard action", []string{"users:*"}, [][]string{{"users:write"}}, true},
		{"wildcard other resource", []string{"orders:*"}, [][]string{{"users:write"}}, false},
		{"all of a group", []string{"users:read"}, [][]string{{"users:read", "orders:read"}}, false},
		{"either group", []string{"orders:read"}, [][]string{{"users:read"}, {"orders:read"}}, true},
		{"scope without action", []string{"admin"}, [][]string{{"admin:write"}}, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Enforce(TestCtx(ID, c.held...), c.required...)
			if c.allowed {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, Forbidden, err)
			}
		})
	}
}

func TestEnforceBlankCredentials(t *testing.T) {
	err := Enforce(context.Background(), []string{"users:read"})

	var e errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 403, e.Code)
}

func TestCarryCredentials(t *testing.T) {
	codec := transport.NewCodec()
	Carry(codec)
	ctx := TestCtx(uuid.New(), "users:read")

	md := codec.Encode(ctx)
	out := codec.Decode(context.Background(), md)

	assert.Equal(t, GetCredentials(ctx), GetCredentials(out))
}
