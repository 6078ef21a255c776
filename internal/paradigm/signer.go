package paradigm

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header names required on every signed Paradigm REST request.
const (
	HeaderTimestamp = "Paradigm-API-Timestamp"
	HeaderSignature = "Paradigm-API-Signature"
)

// Sign computes the timestamp and signature headers for a Paradigm REST
// request. The secret key is base64-encoded; the signed message is
// timestamp + "\n" + METHOD + "\n" + path + "\n" + body, where path includes
// the query string and body is empty for bodyless requests.
func Sign(method, path, body, secretKey string) (timestamp, signature string, err error) {
	return signAt(time.Now(), method, path, body, secretKey)
}

func signAt(t time.Time, method, path, body, secretKey string) (string, string, error) {
	signingKey, err := base64.StdEncoding.DecodeString(secretKey)
	if err != nil {
		return "", "", fmt.Errorf("paradigm: decode secret key: %w", err)
	}

	timestamp := strconv.FormatInt(t.UnixMilli(), 10)
	message := timestamp + "\n" + strings.ToUpper(method) + "\n" + path + "\n" + body

	h := hmac.New(sha256.New, signingKey)
	h.Write([]byte(message))
	signature := base64.StdEncoding.EncodeToString(h.Sum(nil))

	return timestamp, signature, nil
}
