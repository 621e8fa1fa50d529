package webhook

import "crypto/subtle"

// VerifyToken authenticates a webhook request by constant-time comparison
// of the X-Gitlab-Token header against the configured shared secret,
// grounded on the teacher's VerifySignature (same constant-time-compare
// shape, adapted to GitLab's plain shared-secret scheme rather than
// GitHub's HMAC-over-body signature).
func VerifyToken(received, expected string) bool {
	if received == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(received), []byte(expected)) == 1
}
