package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// RegisterAccountMessage carries the registration input
type RegisterAccountMessage struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	OnResponse func(*RegisterAccountResponse)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// RegisterAccountResponse is handed to OnResponse after the account exists
type RegisterAccountResponse struct {
	Account *User
	Success bool
}

// RegisterAccountHandler creates an unverified account with a pending
// verification token and sends the verification email.
type RegisterAccountHandler struct {
	repo      RepositoryManager
	mailer    Mailer
	links     *LinkBuilder
	logger    Logger
	useHashid bool
}

// NewRegisterAccountHandler creates a handler with sane defaults
func NewRegisterAccountHandler(repo RepositoryManager, mailer Mailer, links *LinkBuilder) *RegisterAccountHandler {
	return &RegisterAccountHandler{
		repo:   repo,
		mailer: mailer,
		links:  links,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler
func (h *RegisterAccountHandler) WithLogger(logger Logger) *RegisterAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithDeterministicIDs derives the account id from the email
func (h *RegisterAccountHandler) WithDeterministicIDs(enabled bool) *RegisterAccountHandler {
	h.useHashid = enabled
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	token, err := NewActionToken()
	if err != nil {
		return err
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().GetByEmailTx(ctx, tx, event.Email); err == nil {
			return ErrEmailTaken
		} else if !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing account")
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.Name = event.Name
		user.Email = event.Email
		user.PasswordHash = hash
		user.Role = RoleUser
		user.VerificationToken = &token

		if h.useHashid {
			if id, err := hashid.NewUUID(NormalizeEmail(event.Email)); err == nil {
				user.ID = id
			}
		}

		// The unique index on email backstops this check: a concurrent insert
		// with the same address fails here instead of creating a duplicate.
		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	// The account row is committed at this point. A delivery failure surfaces
	// to the caller but does not roll the account back; the user is parked
	// unverified until a fresh verification mail goes out.
	if err := h.sendVerificationEmail(ctx, user.Email, token); err != nil {
		h.logger.Error("verification email delivery failed", "email", user.Email, "error", err)
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(&RegisterAccountResponse{
			Account: user,
			Success: true,
		})
	}

	return nil
}

func (h *RegisterAccountHandler) sendVerificationEmail(ctx context.Context, email, token string) error {
	body, err := h.links.VerificationBody(token)
	if err != nil {
		return err
	}

	if err := h.mailer.Send(ctx, email, SubjectVerifyEmail, body); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account created but verification email could not be sent")
	}

	return nil
}
