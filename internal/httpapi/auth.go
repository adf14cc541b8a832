package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized indicates a missing or invalid bearer token.
var ErrUnauthorized = errors.New("unauthorized")

// TokenVerifier validates HS256 access tokens issued by the identity
// provider and extracts the caller id from the sub claim.
type TokenVerifier struct {
	secret   []byte
	audience string
	issuer   string
	now      func() time.Time
}

// NewTokenVerifier creates a TokenVerifier. Audience and issuer are checked
// only when non-empty.
func NewTokenVerifier(secret, audience, issuer string) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token verifier: secret is required")
	}
	return &TokenVerifier{
		secret:   []byte(secret),
		audience: strings.TrimSpace(audience),
		issuer:   strings.TrimSpace(issuer),
		now:      time.Now,
	}, nil
}

// Verify parses raw and returns its subject.
func (v *TokenVerifier) Verify(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: token is required", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return claims.Subject, nil
}

type callerKey struct{}

// WithCaller returns a context carrying the authenticated caller id.
func WithCaller(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerKey{}, id)
}

// CallerID returns the authenticated caller id from ctx.
func CallerID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callerKey{}).(string)
	return id, ok && id != ""
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate rejects requests without a valid bearer token. The caller id
// is stored in the request locals and in the user context handed to the
// services.
func Authenticate(v *TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := v.Verify(bearerToken(c.Get(fiber.HeaderAuthorization)))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(envelope{Error: "Unauthorized"})
		}
		c.Locals(callerKey{}, caller)
		c.SetUserContext(WithCaller(c.UserContext(), caller))
		return c.Next()
	}
}
