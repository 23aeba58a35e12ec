package bitmex

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

const (
	headerExpires   = "api-expires"
	headerKey       = "api-key"
	headerSignature = "api-signature"

	// signatureTTL bounds how long a signed request stays valid on the exchange side.
	signatureTTL = 60 * time.Second
)

// Credentials sign private REST calls and the authenticated feed handshake.
type Credentials struct {
	Key    string
	Secret string
}

func (c Credentials) Empty() bool {
	return c.Key == "" || c.Secret == ""
}

// Sign returns hex(HMAC-SHA256(secret, verb+path+expires+body)).
func Sign(secret, verb, path string, expires int64, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(verb + path + strconv.FormatInt(expires, 10) + body))
	return hex.EncodeToString(mac.Sum(nil))
}

// Headers returns the auth headers for one request. Path includes the query string.
func (c Credentials) Headers(verb, path, body string, now time.Time) http.Header {
	header := http.Header{}
	if c.Empty() {
		return header
	}

	expires := now.Add(signatureTTL).Unix()
	header.Set(headerExpires, strconv.FormatInt(expires, 10))
	header.Set(headerKey, c.Key)
	header.Set(headerSignature, Sign(c.Secret, verb, path, expires, body))
	return header
}
