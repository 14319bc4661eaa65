package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-messenger/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   int
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), 42),
			userId:   42,
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId, "expected UserId to return %d", tc.userId)
		})
	}
}

func Test_tokenFromRequest(t *testing.T) {
	tcases := []struct {
		name      string
		cookie    string
		header    string
		expected  string
		expectErr bool
	}{
		{
			name:     "cookie",
			cookie:   "from-cookie",
			expected: "from-cookie",
		},
		{
			name:     "bearer header",
			header:   "Bearer from-header",
			expected: "from-header",
		},
		{
			name:     "cookie wins over header",
			cookie:   "from-cookie",
			header:   "Bearer from-header",
			expected: "from-cookie",
		},
		{
			name:      "basic auth is ignored",
			header:    "Basic dXNlcjpwYXNz",
			expectErr: true,
		},
		{
			name:      "no token",
			expectErr: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: tc.cookie})
			}
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			token, err := tokenFromRequest(req)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, token)
		})
	}
}

func TestJwtRoundTrip(t *testing.T) {
	app := &GoChatApp{signingKey: []byte("test-signing-key")}

	token, err := app.createJwtForSession(types.User{Id: 7}, defaultJwtExpiration)
	assert.NoError(t, err)

	userId, err := app.extractUserIdFromToken(token)
	assert.NoError(t, err)
	assert.Equal(t, 7, userId)

	t.Run("wrong key", func(t *testing.T) {
		other := &GoChatApp{signingKey: []byte("another-key")}
		_, err := other.extractUserIdFromToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := app.createJwtForSession(types.User{Id: 7}, -time.Minute)
		assert.NoError(t, err)
		_, err = app.extractUserIdFromToken(expired)
		assert.Error(t, err)
	})

	t.Run("missing user id claim", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			expClaim: time.Now().Add(time.Hour).Unix(),
		}).SignedString(app.signingKey)
		assert.NoError(t, err)
		_, err = app.extractUserIdFromToken(tok)
		assert.Error(t, err)
	})

	t.Run("unsigned token", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			userIdClaim: 7,
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		assert.NoError(t, err)
		_, err = app.extractUserIdFromToken(tok)
		assert.Error(t, err)
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("password")
	assert.NoError(t, err)
	assert.NotEqual(t, "password", hash)
	assert.True(t, verifyPassword(hash, "password"))
	assert.False(t, verifyPassword(hash, "wrong"))
}

func Test_createJwtCookie(t *testing.T) {
	c := createJwtCookie("abc", time.Hour)
	assert.Equal(t, tokenCookieKey, c.Name)
	assert.Equal(t, "abc", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.True(t, c.Expires.After(time.Now()))
}
