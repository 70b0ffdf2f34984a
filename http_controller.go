package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/kettlebit/go-accounts/middleware/jwtware"
)

// SessionCookieName is the cookie the session token travels in
const SessionCookieName = "token"

// AccountControllerRoutes holds the route paths, relative to the mount point
type AccountControllerRoutes struct {
	Register       string
	Verify         string
	Login          string
	Logout         string
	Profile        string
	ForgotPassword string
	ResetPassword  string
}

// AccountController exposes the account lifecycle over HTTP
type AccountController struct {
	Debug     bool
	Logger    Logger
	Repo      RepositoryManager
	Mailer    Mailer
	Auth      Authenticator
	Config    *Config
	Routes    *AccountControllerRoutes
	Validator TokenValidator

	links *LinkBuilder
}

// AccountControllerOption customizes the controller
type AccountControllerOption func(*AccountController) *AccountController

// WithControllerLogger sets the controller logger
func WithControllerLogger(l Logger) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Logger = l
		return a
	}
}

// WithRepository sets the repository manager
func WithRepository(repo RepositoryManager) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Repo = repo
		return a
	}
}

// WithMailer sets the outbound mailer
func WithMailer(m Mailer) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Mailer = m
		return a
	}
}

// WithAuthenticator sets the authenticator
func WithAuthenticator(auth Authenticator) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Auth = auth
		return a
	}
}

// WithConfig sets the runtime configuration
func WithConfig(cfg *Config) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Config = cfg
		return a
	}
}

// WithTokenValidator sets the validator backing the session guard
func WithTokenValidator(v TokenValidator) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Validator = v
		return a
	}
}

// WithDebug enables request payload debug printing
func WithDebug(debug bool) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Debug = debug
		return a
	}
}

// NewAccountController builds the controller, panicking on missing collaborators
func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger: defLogger{},
		Routes: &AccountControllerRoutes{
			Register:       "/register",
			Verify:         "/verify/:token",
			Login:          "/login",
			Logout:         "/logout",
			Profile:        "/profile",
			ForgotPassword: "/forget-password",
			ResetPassword:  "/reset-password/:token",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in account controller...")
	}

	if c.Auth == nil {
		panic("Missing Authenticator in account controller...")
	}

	if c.Mailer == nil {
		panic("Missing Mailer in account controller...")
	}

	if c.Config == nil {
		panic("Missing Config in account controller...")
	}

	if c.Validator == nil {
		panic("Missing TokenValidator in account controller...")
	}

	c.links = NewLinkBuilder(c.Config.BaseURL)

	return c
}

// RegisterRoutes mounts all account routes on the given router
func (a *AccountController) RegisterRoutes(r fiber.Router) {
	guard := a.SessionGuard()

	r.Post(a.Routes.Register, a.Register)
	r.Get(a.Routes.Verify, a.VerifyEmail)
	r.Post(a.Routes.Login, a.Login)
	r.Get(a.Routes.Logout, guard, a.Logout)
	r.Get(a.Routes.Profile, guard, a.Profile)
	r.Post(a.Routes.ForgotPassword, a.ForgotPassword)
	r.Post(a.Routes.ResetPassword, a.ResetPassword)
}

// SessionGuard is the middleware protecting routes that need a valid session
func (a *AccountController) SessionGuard() fiber.Handler {
	return jwtware.New(jwtware.Config{
		TokenLookup: "cookie:" + SessionCookieName + ",header:" + fiber.HeaderAuthorization,
		AuthScheme:  "Bearer",
		ContextKey:  jwtware.DefaultContextKey,
		TokenValidator: jwtware.TokenValidatorFunc(func(raw string) (jwtware.AuthClaims, error) {
			claims, err := a.Validator.Validate(raw)
			if err != nil {
				return nil, err
			}
			return claims, nil
		}),
		ErrorHandler: a.authErrorHandler,
		ContextEnricher: func(ctx context.Context, claims jwtware.AuthClaims) context.Context {
			if ac, ok := claims.(AuthClaims); ok {
				return WithClaimsContext(ctx, ac)
			}
			return ctx
		},
	})
}

func (a *AccountController) authErrorHandler(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error

	if IsTokenExpiredError(err) {
		richErr = ErrTokenExpired
	} else if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) || IsMalformedError(err) {
		richErr = ErrTokenMalformed
	} else {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "Authentication failed.").
			WithCode(goerrors.CodeUnauthorized)
	}

	return a.fail(c, richErr)
}

// RegisterPayload is the registration request body
type RegisterPayload struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

// Register handles POST /register
func (a *AccountController) Register(c *fiber.Ctx) error {
	payload := new(RegisterPayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("register parse payload", "error", err)
		return a.fail(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "name, email and password are required."))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register validate payload", "error", err)
		return a.fail(c, goerrors.Wrap(err, goerrors.CategoryValidation, "name, email and password are required."))
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(payload))
	}

	var res *RegisterAccountResponse

	handler := NewRegisterAccountHandler(a.Repo, a.Mailer, a.links).
		WithLogger(a.Logger).
		WithDeterministicIDs(a.Config.DeterministicIDs)

	err := handler.Execute(c.UserContext(), RegisterAccountMessage{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
		OnResponse: func(r *RegisterAccountResponse) {
			res = r
		},
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "User registered successfully",
		"id":      res.Account.ID.String(),
	})
}

// VerifyEmail handles GET /verify/:token
func (a *AccountController) VerifyEmail(c *fiber.Ctx) error {
	handler := NewVerifyEmailHandler(a.Repo).WithLogger(a.Logger)

	err := handler.Execute(c.UserContext(), VerifyEmailMessage{
		Token: c.Params("token"),
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Email verified successfully",
	})
}

// LoginPayload is the login request body
type LoginPayload struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// Login handles POST /login
func (a *AccountController) Login(c *fiber.Ctx) error {
	payload := new(LoginPayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.fail(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "email and password are required."))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("login validate payload", "error", err)
		return a.fail(c, goerrors.Wrap(err, goerrors.CategoryValidation, "email and password are required."))
	}

	token, identity, err := a.Auth.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return a.fail(c, err)
	}

	a.setSessionCookie(c, token, a.Config.TokenTTL())

	// The token rides in the body as well so non-cookie clients can store it.
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged in successfully",
		"token":   token,
		"user": fiber.Map{
			"id":    identity.ID(),
			"name":  identity.Name(),
			"email": identity.Email(),
			"role":  identity.Role(),
		},
	})
}

// Logout handles GET /logout (protected)
func (a *AccountController) Logout(c *fiber.Ctx) error {
	// Stateless sessions cannot be revoked server side; the token stays valid
	// until expiry. We only evict the cookie.
	a.clearSessionCookie(c)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged out successfully",
	})
}

// Profile handles GET /profile (protected)
func (a *AccountController) Profile(c *fiber.Ctx) error {
	claims, ok := jwtware.ClaimsFromContext(c, "")
	if !ok {
		return a.fail(c, ErrTokenMalformed)
	}

	user, err := a.Repo.Users().GetByID(c.UserContext(), claims.UserID())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return a.fail(c, ErrAccountNotFound)
		}
		return a.fail(c, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load profile"))
	}

	// User's json tags keep the hash and pending tokens out of the response.
	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
	})
}

// ForgotPasswordPayload is the recovery request body
type ForgotPasswordPayload struct {
	Email string `json:"email" form:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ForgotPassword handles POST /forget-password
func (a *AccountController) ForgotPassword(c *fiber.Ctx) error {
	payload := new(ForgotPasswordPayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("forgot password parse payload", "error", err)
		return a.fail(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "email is required."))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("forgot password validate payload", "error", err)
		return a.fail(c, goerrors.Wrap(err, goerrors.CategoryValidation, "email is required."))
	}

	handler := NewInitializePasswordResetHandler(a.Repo, a.Mailer, a.links).
		WithTTL(a.Config.ResetTokenTTL).
		WithLogger(a.Logger)

	err := handler.Execute(c.UserContext(), InitializePasswordResetMessage{
		Email: payload.Email,
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Password reset email sent",
	})
}

// ResetPasswordPayload is the reset confirmation body
type ResetPasswordPayload struct {
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

// Validate will run validation rules
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// ResetPassword handles POST /reset-password/:token
func (a *AccountController) ResetPassword(c *fiber.Ctx) error {
	payload := new(ResetPasswordPayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("reset password parse payload", "error", err)
		return a.fail(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "password and confirm password are required."))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("reset password validate payload", "error", err)
		return a.fail(c, goerrors.Wrap(err, goerrors.CategoryValidation, "passwords are missing or do not match."))
	}

	handler := NewFinalizePasswordResetHandler(a.Repo).WithLogger(a.Logger)

	err := handler.Execute(c.UserContext(), FinalizePasswordResetMessage{
		Token:           c.Params("token"),
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Password reset successfully",
	})
}

func (a *AccountController) setSessionCookie(c *fiber.Ctx, token string, ttl time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *AccountController) clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// fail converts any error into the structured failure envelope
func (a *AccountController) fail(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "Internal server error")
	}

	status := HTTPStatus(richErr)
	if status >= 500 {
		a.Logger.Error("request failed", "status", status, "error", err)
	}

	body := fiber.Map{
		"success": false,
		"message": richErr.Message,
	}

	if richErr.TextCode != "" {
		body["error"] = richErr.TextCode
	}

	return c.Status(status).JSON(body)
}

// ValidateStringEquals builds an ozzo rule asserting equality with str
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
