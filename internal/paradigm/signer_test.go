package paradigm

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAtMatchesDocumentedScheme(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("super-secret-key"))
	at := time.UnixMilli(1671000000123)

	timestamp, signature, err := signAt(at, "POST", "/v2/drfq/orders", `{"rfq_id":"42"}`, secret)
	require.NoError(t, err)
	assert.Equal(t, "1671000000123", timestamp)

	mac := hmac.New(sha256.New, []byte("super-secret-key"))
	mac.Write([]byte("1671000000123\nPOST\n/v2/drfq/orders\n{\"rfq_id\":\"42\"}"))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, expected, signature)
}

func TestSignAtUppercasesMethod(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("k"))
	at := time.UnixMilli(1700000000000)

	_, lower, err := signAt(at, "get", "/v2/drfq/rfqs?page_size=100", "", secret)
	require.NoError(t, err)
	_, upper, err := signAt(at, "GET", "/v2/drfq/rfqs?page_size=100", "", secret)
	require.NoError(t, err)

	assert.Equal(t, upper, lower)
}

func TestSignAtEmptyBody(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("k"))
	at := time.UnixMilli(1700000000000)

	_, signature, err := signAt(at, "GET", "/v2/drfq/mmp/status", "", secret)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("k"))
	mac.Write([]byte("1700000000000\nGET\n/v2/drfq/mmp/status\n"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), signature)
}

func TestSignRejectsInvalidSecret(t *testing.T) {
	_, _, err := Sign("GET", "/v2/drfq/rfqs", "", "not base64!!!")
	require.Error(t, err)
}
