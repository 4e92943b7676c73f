package remote

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Header names for the shared-secret request signature scheme used
// between billgate instances.
const (
	HeaderTimestamp = "X-Billgate-Timestamp"
	HeaderSignature = "X-Billgate-Signature"
)

// MaxClockSkew bounds how stale a signed request may be.
const MaxClockSkew = 5 * time.Minute

// Sign computes the request signature over method, path and a unix
// timestamp using the shared secret.
// This is a PURE function.
func Sign(secret, method, path string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method))
	mac.Write([]byte("\n"))
	mac.Write([]byte(path))
	mac.Write([]byte("\n"))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a request signature in constant time and rejects
// timestamps outside the skew window.
// This is a PURE function.
func Verify(secret, method, path, tsHeader, signature string, now time.Time) bool {
	unix, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return false
	}
	ts := time.Unix(unix, 0)

	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxClockSkew {
		return false
	}

	expected := Sign(secret, method, path, ts)
	return hmac.Equal([]byte(signature), []byte(expected))
}
