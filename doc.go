// Package accounts implements a small user-account service core: registration
// with email verification, password login with signed session tokens, and
// email-based password recovery.
//
// Account lifecycle:
//   - Accounts are created unverified with a pending verification token and
//     persisted via Bun. Login is refused until the token is consumed.
//   - Each lifecycle operation is a command handler (RegisterAccountHandler,
//     VerifyEmailHandler, InitializePasswordResetHandler,
//     FinalizePasswordResetHandler) that owns its validation, persistence, and
//     outbound email, so transports stay thin.
//
// Sessions:
//   - Auther verifies credentials through an IdentityProvider and mints HS256
//     JWTs carrying {account id, name, role}. middleware/jwtware guards
//     protected routes and trusts token claims without a store round trip.
//
// Side channels:
//   - Mailer abstracts outbound email. SMTPMailer ships transactional messages
//     with verification and reset links; tests use the in-memory recorder.
package accounts
