// Package fingerprint computes the change fingerprint over a record's
// mutable attribute set. The fingerprint detects accidental drift between
// imports; collision resistance against adversarial input is not a goal.
package fingerprint

import (
	"crypto/md5" //nolint:gosec // drift detection only, not a security boundary
	"encoding/base64"
)

// Sum returns a stable fingerprint over the mutable attributes in their
// fixed field order: given name, surname, display name, mail nickname,
// principal name. Two renderings of the same logical attribute set hash
// identically.
func Sum(givenName, surname, displayName, mailNickname, principalName string) string {
	digest := md5.Sum([]byte(givenName + surname + displayName + mailNickname + principalName)) //nolint:gosec
	return base64.StdEncoding.EncodeToString(digest[:])
}
