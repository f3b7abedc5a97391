package enrollment

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateToken returns a URL-safe signup token backed by 256 bits of
// entropy. Tokens are never derived from application data.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
