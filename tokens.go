package accounts

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/goliatone/go-errors"
)

// actionTokenBytes is the entropy of verification and reset tokens.
const actionTokenBytes = 32

// NewActionToken returns an opaque single-use token: 32 bytes from a
// cryptographically secure source, hex encoded. The value carries no
// structure and is only ever used as a lookup key.
func NewActionToken() (string, error) {
	buf := make([]byte, actionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate action token")
	}
	return hex.EncodeToString(buf), nil
}
