package totp

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"

	pqotp "github.com/pquerna/otp/totp"
	"pgregory.net/rapid"
)

// rfcSecret is the 20-byte ASCII test key from RFC 6238 appendix B.
var rfcSecret = base32.StdEncoding.WithPadding(base32.NoPadding).
	EncodeToString([]byte("12345678901234567890"))

func TestComputeCode_RFC6238Vectors(t *testing.T) {
	// 6-digit truncations of the RFC 6238 appendix B SHA-1 vectors
	vectors := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}

	for _, v := range vectors {
		code, err := ComputeCode(rfcSecret, time.Unix(v.unix, 0))
		if err != nil {
			t.Fatalf("ComputeCode(%d) returned error: %v", v.unix, err)
		}
		if code != v.code {
			t.Errorf("ComputeCode(%d) = %s, want %s", v.unix, code, v.code)
		}
	}
}

func TestComputeCode_MatchesReferenceImplementation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		secret, err := GenerateSecret()
		if err != nil {
			t.Fatalf("GenerateSecret failed: %v", err)
		}
		at := time.Unix(rapid.Int64Range(0, 4102444800).Draw(t, "unix"), 0)

		ours, err := ComputeCode(secret, at)
		if err != nil {
			t.Fatalf("ComputeCode failed: %v", err)
		}
		theirs, err := pqotp.GenerateCode(secret, at)
		if err != nil {
			t.Fatalf("reference GenerateCode failed: %v", err)
		}
		if ours != theirs {
			t.Fatalf("ComputeCode = %s, reference = %s (secret %s, t %d)", ours, theirs, secret, at.Unix())
		}
	})
}

func TestGenerateSecret(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		secret, err := GenerateSecret()
		if err != nil {
			t.Fatalf("GenerateSecret failed: %v", err)
		}
		if seen[secret] {
			t.Fatalf("GenerateSecret returned duplicate secret")
		}
		seen[secret] = true

		raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
		if err != nil {
			t.Fatalf("secret is not valid unpadded base32: %v", err)
		}
		if len(raw) < 20 {
			t.Errorf("secret has %d bytes of entropy, want >= 20", len(raw))
		}
	}
}

func TestVerify_WindowTolerance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		secret, err := GenerateSecret()
		if err != nil {
			t.Fatalf("GenerateSecret failed: %v", err)
		}
		now := time.Unix(rapid.Int64Range(0, 4102444800).Draw(t, "unix"), 0)

		// The current code always verifies, even with no window
		code, err := ComputeCode(secret, now)
		if err != nil {
			t.Fatalf("ComputeCode failed: %v", err)
		}
		if ok, _ := Verify(secret, code, now, 0); !ok {
			t.Fatalf("current code rejected with window 0")
		}

		// Codes one step away verify under the default window
		for _, drift := range []time.Duration{-DefaultPeriod, DefaultPeriod} {
			driftedCode, err := ComputeCode(secret, now.Add(drift))
			if err != nil {
				t.Fatalf("ComputeCode failed: %v", err)
			}
			if ok, _ := Verify(secret, driftedCode, now, 1); !ok {
				t.Fatalf("code at drift %v rejected with window 1", drift)
			}
		}

		// Codes two steps away must not verify under window 1.
		// A two-step-old code can coincide with an in-window code by
		// chance (1 in 10^6 per candidate); skip those draws.
		for _, drift := range []time.Duration{-2 * DefaultPeriod, 2 * DefaultPeriod} {
			farCode, err := ComputeCode(secret, now.Add(drift))
			if err != nil {
				t.Fatalf("ComputeCode failed: %v", err)
			}
			collision := false
			for _, d := range []time.Duration{-DefaultPeriod, 0, DefaultPeriod} {
				inWindow, _ := ComputeCode(secret, now.Add(d))
				if inWindow == farCode {
					collision = true
				}
			}
			if collision {
				continue
			}
			if ok, _ := Verify(secret, farCode, now, 1); ok {
				t.Fatalf("code at drift %v accepted with window 1", drift)
			}
		}
	})
}

func TestVerify_RejectsMalformedInput(t *testing.T) {
	secret, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	now := time.Now()

	for _, candidate := range []string{"", "12345", "1234567", "abcdef"} {
		if ok, err := Verify(secret, candidate, now, 1); err != nil || ok {
			t.Errorf("Verify(%q) = (%v, %v), want (false, nil)", candidate, ok, err)
		}
	}

	if _, err := Verify("not!base32", "123456", now, 1); err == nil {
		t.Error("Verify with invalid secret did not return an error")
	}
}

func TestProvisioningURI(t *testing.T) {
	uri := ProvisioningURI("BizBoard", "ana@example.com", "SECRETBASE32", 30*time.Second)
	want := "otpauth://totp/BizBoard:ana@example.com?secret=SECRETBASE32&issuer=BizBoard&algorithm=SHA1&digits=6&period=30"
	if uri != want {
		t.Errorf("ProvisioningURI = %s, want %s", uri, want)
	}

	// Issuer with spaces must be escaped in both label and query parameter
	uri = ProvisioningURI("Biz Board", "ana@example.com", "S", 30*time.Second)
	if !strings.HasPrefix(uri, "otpauth://totp/Biz%20Board:ana@example.com?") {
		t.Errorf("unexpected label escaping: %s", uri)
	}
	if !strings.Contains(uri, "&issuer=Biz+Board&") {
		t.Errorf("unexpected query escaping: %s", uri)
	}
}
