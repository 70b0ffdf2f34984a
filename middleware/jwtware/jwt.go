// Package jwtware guards fiber routes behind a validated session token. It
// mirrors the token-lookup configuration of the upstream fiber JWT middleware
// but delegates validation to an injected TokenValidator so the signing
// implementation stays in one place.
package jwtware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ErrJWTMissingOrMalformed is returned when no usable token is found on the
// request.
var ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")

// TokenValidator validates a raw token and extracts claims. Mirrors the
// accounts TokenService to avoid an import cycle.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator
type TokenValidatorFunc func(tokenString string) (AuthClaims, error)

// Validate satisfies the TokenValidator interface
func (f TokenValidatorFunc) Validate(tokenString string) (AuthClaims, error) {
	if f == nil {
		return nil, ErrJWTMissingOrMalformed
	}
	return f(tokenString)
}

// AuthClaims is the validated session surface downstream handlers consume.
// Mirrors the accounts AuthClaims interface.
type AuthClaims interface {
	Subject() string
	UserID() string
	Name() string
	Role() string
	HasRole(role string) bool
}

// Config holds the middleware options
type Config struct {
	// Filter defines a function to skip the middleware
	Filter func(*fiber.Ctx) bool
	// SuccessHandler runs after the token was validated; defaults to Next
	SuccessHandler fiber.Handler
	// ErrorHandler runs when no valid token is present
	ErrorHandler fiber.ErrorHandler
	// TokenValidator is required for token validation
	TokenValidator TokenValidator
	// ContextKey is the Locals key the claims are stored under
	ContextKey string
	// TokenLookup is a comma separated list of "<source>:<name>" entries,
	// e.g. "cookie:token,header:Authorization"
	TokenLookup string
	// AuthScheme is stripped from header values, e.g. "Bearer"
	AuthScheme string
	// RequiredRole, when set, rejects sessions lacking the role
	RequiredRole string
	// ContextEnricher propagates claims into the request's standard context
	ContextEnricher func(ctx context.Context, claims AuthClaims) context.Context
}

// ErrMissingValidator is returned by New when no TokenValidator is configured
var ErrMissingValidator = errors.New("jwtware: TokenValidator is required")

// DefaultContextKey is where validated claims land in Locals
const DefaultContextKey = "claims"

func makeCfg(config []Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenValidator == nil {
		panic(ErrMissingValidator)
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			if errors.Is(err, ErrJWTMissingOrMalformed) {
				return c.Status(fiber.StatusBadRequest).SendString(err.Error())
			}
			return c.Status(fiber.StatusUnauthorized).SendString("invalid or expired JWT")
		}
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = "cookie:token,header:" + fiber.HeaderAuthorization
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	return cfg
}

// New returns the session guard middleware
func New(config ...Config) fiber.Handler {
	cfg := makeCfg(config)
	extractors := cfg.getExtractors()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := extractRawToken(c, extractors)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		claims, err := cfg.TokenValidator.Validate(raw)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if cfg.RequiredRole != "" && !claims.HasRole(cfg.RequiredRole) {
			return cfg.ErrorHandler(c, errors.New("insufficient role"))
		}

		c.Locals(cfg.ContextKey, claims)

		if cfg.ContextEnricher != nil {
			c.SetUserContext(cfg.ContextEnricher(c.UserContext(), claims))
		}

		return cfg.SuccessHandler(c)
	}
}

// ClaimsFromContext returns the validated claims stored by the middleware
func ClaimsFromContext(c *fiber.Ctx, key string) (AuthClaims, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	claims, ok := c.Locals(key).(AuthClaims)
	return claims, ok
}

type extractor func(c *fiber.Ctx) (string, error)

func (cfg Config) getExtractors() []extractor {
	var extractors []extractor

	for _, entry := range strings.Split(cfg.TokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 {
			continue
		}

		source, name := parts[0], parts[1]
		switch source {
		case "header":
			extractors = append(extractors, fromHeader(name, cfg.AuthScheme))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		case "query":
			extractors = append(extractors, fromQuery(name))
		case "param":
			extractors = append(extractors, fromParam(name))
		}
	}

	return extractors
}

func extractRawToken(c *fiber.Ctx, extractors []extractor) (string, error) {
	for _, fn := range extractors {
		if token, err := fn(c); err == nil && token != "" {
			return token, nil
		}
	}
	return "", ErrJWTMissingOrMalformed
}

func fromHeader(header, authScheme string) extractor {
	return func(c *fiber.Ctx) (string, error) {
		auth := c.Get(header)
		if auth == "" {
			return "", ErrJWTMissingOrMalformed
		}

		if authScheme != "" {
			l := len(authScheme)
			if len(auth) > l+1 && strings.EqualFold(auth[:l], authScheme) {
				return strings.TrimSpace(auth[l+1:]), nil
			}
			return "", ErrJWTMissingOrMalformed
		}

		return auth, nil
	}
}

func fromCookie(name string) extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

func fromQuery(name string) extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

func fromParam(name string) extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Params(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}
