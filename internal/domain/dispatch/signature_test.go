package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestSignRoundTrip(t *testing.T) {
	body := []byte(`{"a":1}`)

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	got := Sign("s3cret", body)
	if got != want {
		t.Fatalf("Sign = %q, want %q", got, want)
	}
	if !Verify("s3cret", body, got) {
		t.Fatal("receiver recomputing over the same bytes must match")
	}
}

func TestVerify(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := Sign("s3cret", body)

	tests := []struct {
		name   string
		secret string
		body   []byte
		sig    string
		want   bool
	}{
		{"valid prefixed", "s3cret", body, sig, true},
		{"valid bare hex", "s3cret", body, sig[len("sha256="):], true},
		{"wrong secret", "other", body, sig, false},
		{"re-serialized body", "s3cret", []byte(`{"a": 1}`), sig, false},
		{"not hex", "s3cret", body, "sha256=zz", false},
		{"empty", "s3cret", body, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.secret, tt.body, tt.sig); got != tt.want {
				t.Errorf("Verify = %v, want %v", got, tt.want)
			}
		})
	}
}
