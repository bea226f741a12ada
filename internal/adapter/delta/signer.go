package delta

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"copytrade/internal/utils"
)

const websocketAuthPath = "/live"

// Message builds the canonical prehash string: METHOD + timestamp + path + query + body.
// A non-empty query must carry its leading "?".
func Message(method, timestamp, path, query string, body []byte) string {
	var b strings.Builder
	b.Grow(len(method) + len(timestamp) + len(path) + len(query) + len(body))
	b.WriteString(strings.ToUpper(method))
	b.WriteString(timestamp)
	b.WriteString(path)
	b.WriteString(query)
	b.Write(body)
	return b.String()
}

// Sign returns the timestamp header value and the hex HMAC-SHA256 signature for a request
func Sign(secret, method, path, query string, body []byte, ts time.Time) (timestamp, signature string) {
	timestamp = utils.UnixSeconds(ts)
	return timestamp, hmacHex(secret, Message(method, timestamp, path, query, body))
}

// Verify reports whether signature matches the request fields
func Verify(secret, method, timestamp, path, query string, body []byte, signature string) bool {
	expected := hmacHex(secret, Message(method, timestamp, path, query, body))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// WebSocketAuth signs the stream login message for ts
func WebSocketAuth(secret string, ts time.Time) (timestamp, signature string) {
	return Sign(secret, "GET", websocketAuthPath, "", nil, ts)
}

func hmacHex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
