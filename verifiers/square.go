package verifiers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

const squareSignatureHeader = "x-square-hmacsha256-signature"

// SquareVerifier checks the base64 HMAC-SHA256 over the notification URL
// concatenated with the raw body.
type SquareVerifier struct{}

func (SquareVerifier) Name() string {
	return "square"
}

func (SquareVerifier) Verify(payload []byte, headers map[string]string, cfg Config) bool {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return false
	}
	signature := strings.TrimSpace(headerValue(headers, squareSignatureHeader))
	if signature == "" {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strings.TrimSpace(cfg.NotificationURL)))
	_, _ = mac.Write(payload)
	expected := mac.Sum(nil)

	return subtle.ConstantTimeCompare(decoded, expected) == 1
}

func (SquareVerifier) ExtractEventID(body map[string]any, _ map[string]string) (string, bool) {
	if id, ok := stringField(body, "event_id"); ok {
		return id, true
	}
	return stringField(body, "id")
}

func (SquareVerifier) ExtractEventType(body map[string]any, _ map[string]string) (string, bool) {
	return stringField(body, "type")
}

func (SquareVerifier) ExtractTimestamp(map[string]string) (int64, bool) {
	return 0, false
}
