package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	secret := "channel-secret"

	if !VerifySignature(secret, body, sign(secret, body)) {
		t.Fatal("expected valid signature to verify")
	}
	if VerifySignature(secret, []byte(`{"events":[{}]}`), sign(secret, body)) {
		t.Fatal("tampered body must not verify")
	}
	if VerifySignature(secret, body, sign("other-secret", body)) {
		t.Fatal("signature from wrong secret must not verify")
	}
	if VerifySignature(secret, body, "") {
		t.Fatal("empty signature must not verify")
	}
	if VerifySignature("", body, sign("", body)) {
		t.Fatal("empty channel secret must reject everything")
	}
}
