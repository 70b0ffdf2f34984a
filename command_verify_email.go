package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// VerifyEmailMessage carries the opaque token from the verification link
type VerifyEmailMessage struct {
	Token      string `json:"token"`
	OnResponse func(*VerifyEmailResponse)
}

func (e VerifyEmailMessage) Type() string { return "account.verify_email" }

// VerifyEmailResponse reports the verified account
type VerifyEmailResponse struct {
	Account *User
	Success bool
}

// VerifyEmailHandler consumes a pending verification token. The update is a
// single statement, so the token clears and is_verified flips together; a
// consumed token is gone and a second submission reads as not found.
type VerifyEmailHandler struct {
	repo   RepositoryManager
	logger Logger
}

// NewVerifyEmailHandler creates a handler with sane defaults
func NewVerifyEmailHandler(repo RepositoryManager) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler
func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Token == "" {
		return ErrVerificationTokenNotFound
	}

	user, err := h.repo.Users().ConsumeVerificationToken(ctx, event.Token)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrVerificationTokenNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume verification token")
	}

	if event.OnResponse != nil {
		event.OnResponse(&VerifyEmailResponse{
			Account: user,
			Success: true,
		})
	}

	return nil
}
