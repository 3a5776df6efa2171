package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Signer produces the authentication headers for private endpoints.
// Signature payload: timestamp + method + path + body, HMAC-SHA256 over
// the API secret, hex encoded.
type Signer struct {
	apiKey    string
	apiSecret []byte
}

// NewSigner creates a signer for the given credentials.
func NewSigner(apiKey, apiSecret string) *Signer {
	return &Signer{apiKey: apiKey, apiSecret: []byte(apiSecret)}
}

// Headers returns the auth headers for one request.
func (s *Signer) Headers(method, path, body string) map[string]string {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	return map[string]string{
		"X-API-KEY":       s.apiKey,
		"X-API-TIMESTAMP": timestamp,
		"X-API-SIGNATURE": s.sign(timestamp + method + path + body),
	}
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.apiSecret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
