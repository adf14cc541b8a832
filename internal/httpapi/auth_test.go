package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-signing-key-123"

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(sub string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   sub,
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
}

func TestTokenVerifier_Verify(t *testing.T) {
	v, err := NewTokenVerifier(testSecret, "authenticated", "")
	require.NoError(t, err)

	expired := validClaims("u1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExp := validClaims("u1")
	noExp.ExpiresAt = nil

	wrongAud := validClaims("u1")
	wrongAud.Audience = jwt.ClaimStrings{"anon"}

	tests := []struct {
		name    string
		token   string
		wantSub string
	}{
		{"valid", signToken(t, testSecret, jwt.SigningMethodHS256, validClaims("u1")), "u1"},
		{"wrong secret", signToken(t, "another-secret-another-secret", jwt.SigningMethodHS256, validClaims("u1")), ""},
		{"wrong algorithm", signToken(t, testSecret, jwt.SigningMethodHS512, validClaims("u1")), ""},
		{"expired", signToken(t, testSecret, jwt.SigningMethodHS256, expired), ""},
		{"no expiry", signToken(t, testSecret, jwt.SigningMethodHS256, noExp), ""},
		{"wrong audience", signToken(t, testSecret, jwt.SigningMethodHS256, wrongAud), ""},
		{"no subject", signToken(t, testSecret, jwt.SigningMethodHS256, validClaims("")), ""},
		{"garbage", "not.a.token", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := v.Verify(tt.token)
			if tt.wantSub == "" {
				assert.ErrorIs(t, err, ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSub, sub)
		})
	}
}

func TestTokenVerifier_Issuer(t *testing.T) {
	v, err := NewTokenVerifier(testSecret, "", "https://id.example.com/auth/v1")
	require.NoError(t, err)

	claims := validClaims("u1")
	_, err = v.Verify(signToken(t, testSecret, jwt.SigningMethodHS256, claims))
	assert.ErrorIs(t, err, ErrUnauthorized)

	claims.Issuer = "https://id.example.com/auth/v1"
	sub, err := v.Verify(signToken(t, testSecret, jwt.SigningMethodHS256, claims))
	require.NoError(t, err)
	assert.Equal(t, "u1", sub)
}

func TestNewTokenVerifier_RequiresSecret(t *testing.T) {
	_, err := NewTokenVerifier(" ", "", "")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc ": "abc",
		"Basic abc":   "",
		"abc":         "",
		"":            "",
	}
	for header, want := range tests {
		assert.Equal(t, want, bearerToken(header), "header %q", header)
	}
}

func TestAuthenticate(t *testing.T) {
	v, err := NewTokenVerifier(testSecret, "", "")
	require.NoError(t, err)

	var fromLocals, fromContext string
	app := fiber.New()
	app.Get("/", Authenticate(v), func(c *fiber.Ctx) error {
		fromLocals = caller(c)
		fromContext, _ = CallerID(c.UserContext())
		return c.SendStatus(fiber.StatusNoContent)
	})

	rec := serve(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Unauthorized"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.SigningMethodHS256, validClaims("user-42")))
	rec = serve(t, app, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-42", fromLocals)
	assert.Equal(t, "user-42", fromContext)
}
