// Package totp implements the RFC 6238 time-based one-time-password
// algorithm and one-time backup codes. The package is pure: no I/O, no
// clock access beyond the times callers pass in.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	// DefaultPeriod is the TOTP time step
	DefaultPeriod = 30 * time.Second
	// DefaultWindow is the number of steps tolerated on each side of the
	// current step during verification
	DefaultWindow = 1
	// Digits is the length of generated codes
	Digits = 6

	// secretSize is the raw secret length in bytes (160 bits)
	secretSize = 20
)

// Secret encoding: base32 without padding, the alphabet authenticator
// apps expect in otpauth URIs.
var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Package errors
var (
	ErrInvalidSecret = errors.New("invalid totp secret")
)

// GenerateSecret returns a new random shared secret encoded as unpadded
// base32, suitable for storage and for rendering into a provisioning URI.
func GenerateSecret() (string, error) {
	raw := make([]byte, secretSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return secretEncoding.EncodeToString(raw), nil
}

// ComputeCode derives the 6-digit code for the time step containing t,
// using the default 30-second period.
func ComputeCode(secret string, t time.Time) (string, error) {
	return ComputeCodeWithPeriod(secret, t, DefaultPeriod)
}

// ComputeCodeWithPeriod derives the 6-digit code for the time step
// containing t with an explicit period.
func ComputeCodeWithPeriod(secret string, t time.Time, period time.Duration) (string, error) {
	key, err := secretEncoding.DecodeString(secret)
	if err != nil {
		return "", ErrInvalidSecret
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	counter := uint64(t.Unix() / int64(period/time.Second))
	return hotp(key, counter), nil
}

// hotp is the RFC 4226 derivation: HMAC-SHA1 over the big-endian counter,
// dynamic truncation from the low nibble of the last hash byte, reduced
// mod 10^6 and zero-padded.
func hotp(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", truncated%1000000)
}

// Verify checks a candidate code against the secret using the default
// period and the given window.
func Verify(secret, candidate string, now time.Time, window int) (bool, error) {
	return VerifyWithPeriod(secret, candidate, now, DefaultPeriod, window)
}

// VerifyWithPeriod recomputes codes for the current step and up to window
// steps on each side, in the order current, -1, +1, -2, +2, ..., and
// reports whether any matches the candidate. Each comparison is
// constant-time so that near-misses are indistinguishable from far misses.
func VerifyWithPeriod(secret, candidate string, now time.Time, period time.Duration, window int) (bool, error) {
	key, err := secretEncoding.DecodeString(secret)
	if err != nil {
		return false, ErrInvalidSecret
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	if window < 0 {
		window = 0
	}
	if len(candidate) != Digits {
		return false, nil
	}

	current := now.Unix() / int64(period/time.Second)

	matched := false
	for i := 0; i <= window; i++ {
		steps := []int64{int64(i)}
		if i > 0 {
			steps = []int64{-int64(i), int64(i)}
		}
		for _, d := range steps {
			expected := hotp(key, uint64(current+d))
			if subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1 {
				matched = true
			}
		}
		if matched {
			break
		}
	}

	return matched, nil
}

// ProvisioningURI renders the otpauth URI that authenticator apps consume.
// The parameter order and values are an interop contract; do not reorder.
func ProvisioningURI(issuer, email, secret string, period time.Duration) string {
	if period <= 0 {
		period = DefaultPeriod
	}
	return "otpauth://totp/" + url.PathEscape(issuer) + ":" + url.PathEscape(email) +
		"?secret=" + secret +
		"&issuer=" + url.QueryEscape(issuer) +
		"&algorithm=SHA1" +
		"&digits=6" +
		fmt.Sprintf("&period=%d", int(period/time.Second))
}
