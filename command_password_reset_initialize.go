package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// InitializePasswordResetMessage starts the recovery flow for an email
type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(*InitializePasswordResetResponse)
}

func (e InitializePasswordResetMessage) Type() string { return "account.password_reset_init" }

// InitializePasswordResetResponse reports the issued token state
type InitializePasswordResetResponse struct {
	Account *User
	// Expiry is when the issued token stops being accepted.
	Expiry  time.Time
	Success bool
}

// InitializePasswordResetHandler issues a fresh reset token with an expiry
// and mails the reset link. Issuing a new token overwrites any token still
// outstanding, so only the latest link works.
type InitializePasswordResetHandler struct {
	repo   RepositoryManager
	mailer Mailer
	links  *LinkBuilder
	ttl    time.Duration
	clock  func() time.Time
	logger Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults
func NewInitializePasswordResetHandler(repo RepositoryManager, mailer Mailer, links *LinkBuilder) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:   repo,
		mailer: mailer,
		links:  links,
		ttl:    10 * time.Minute,
		clock:  time.Now,
		logger: defLogger{},
	}
}

// WithTTL overrides the reset-token validity window
func (h *InitializePasswordResetHandler) WithTTL(ttl time.Duration) *InitializePasswordResetHandler {
	if ttl > 0 {
		h.ttl = ttl
	}
	return h
}

// WithClock overrides the time source
func (h *InitializePasswordResetHandler) WithClock(clock func() time.Time) *InitializePasswordResetHandler {
	if clock != nil {
		h.clock = clock
	}
	return h
}

// WithLogger overrides the logger used by the handler
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	token, err := NewActionToken()
	if err != nil {
		return err
	}

	expiry := h.clock().Add(h.ttl)

	user, err := h.repo.Users().SetPasswordResetToken(ctx, event.Email, token, expiry)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrAccountNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password reset token")
	}

	body, err := h.links.ResetBody(token, h.ttl.String())
	if err != nil {
		return err
	}

	if err := h.mailer.Send(ctx, user.Email, SubjectResetPassword, body); err != nil {
		h.logger.Error("reset email delivery failed", "email", user.Email, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset email could not be sent")
	}

	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordResetResponse{
			Account: user,
			Expiry:  expiry,
			Success: true,
		})
	}

	return nil
}
