package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// FinalizePasswordResetMessage completes the recovery flow
type FinalizePasswordResetMessage struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	OnResponse      func(*FinalizePasswordResetResponse)
}

func (e FinalizePasswordResetMessage) Type() string { return "account.password_reset_finalize" }

// FinalizePasswordResetResponse reports the account whose password changed
type FinalizePasswordResetResponse struct {
	Account *User
	Success bool
}

// FinalizePasswordResetHandler replaces the stored hash with a hash of the
// caller supplied new password and clears both reset columns in the same
// statement. The confirm value is only ever compared, never persisted.
type FinalizePasswordResetHandler struct {
	repo   RepositoryManager
	clock  func() time.Time
	logger Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults
func NewFinalizePasswordResetHandler(repo RepositoryManager) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:   repo,
		clock:  time.Now,
		logger: defLogger{},
	}
}

// WithClock overrides the time source
func (h *FinalizePasswordResetHandler) WithClock(clock func() time.Time) *FinalizePasswordResetHandler {
	if clock != nil {
		h.clock = clock
	}
	return h
}

// WithLogger overrides the logger used by the handler
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	var account *User

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Password == "" || event.ConfirmPassword == "" {
		return goerrors.New("password and confirm password are required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if event.Password != event.ConfirmPassword {
		return goerrors.New("passwords do not match", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByResetTokenTx(ctx, tx, event.Token)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrResetTokenExpired
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve password reset request")
		}

		if !user.HasPendingReset(h.clock()) {
			return ErrResetTokenExpired
		}

		passwordHash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		account, err = h.repo.Users().FinalizePasswordResetTx(ctx, tx, event.Token, passwordHash)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrResetTokenExpired
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account password")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	if event.OnResponse != nil {
		event.OnResponse(&FinalizePasswordResetResponse{
			Account: account,
			Success: true,
		})
	}

	return nil
}
