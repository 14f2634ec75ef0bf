package sep2

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	lfdiPattern   = regexp.MustCompile(`^[a-fA-F0-9]{40}$`)
	sha256Pattern = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
	mridPattern   = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)
	pemPattern    = regexp.MustCompile(`(?s)-----BEGIN CERTIFICATE-----(.*?)-----END CERTIFICATE-----`)
)

// IsValidLFDI reports whether s has valid LFDI format: 40 hex chars (case insensitive).
func IsValidLFDI(s string) bool {
	return lfdiPattern.MatchString(s)
}

// IsValidSHA256Hex reports whether s is a 64 hex char SHA-256 fingerprint.
func IsValidSHA256Hex(s string) bool {
	return sha256Pattern.MatchString(s)
}

// IsValidMRID reports whether s is a 32 hex char mRID.
func IsValidMRID(s string) bool {
	return mridPattern.MatchString(s)
}

// ExtractPEMCertificate pulls the base64 DER payload out of a PEM certificate
// block. Content before/after the markers is ignored and the input may be
// URL-escaped (proxies commonly escape the forwarded cert header).
func ExtractPEMCertificate(pem string) ([]byte, bool) {
	if unescaped, err := url.QueryUnescape(pem); err == nil {
		pem = unescaped
	}
	match := pemPattern.FindStringSubmatch(pem)
	if match == nil {
		return nil, false
	}
	joined := strings.Join(strings.Fields(match[1]), "")
	der, err := base64.StdEncoding.DecodeString(joined)
	if err != nil {
		return nil, false
	}
	return der, true
}

// LFDIFromPEM derives the IEEE 2030.5 Long-Form Device Identifier from a TLS
// certificate in PEM format: SHA-256 over the DER bytes, left truncated to
// 160 bits (section 6.3.4).
func LFDIFromPEM(pem string) (string, error) {
	der, ok := ExtractPEMCertificate(pem)
	if !ok {
		return "", errors.New("sep2: not a valid PEM certificate")
	}
	fingerprint := sha256.Sum256(der)
	return LFDIFromFingerprint(hex.EncodeToString(fingerprint[:]))
}

// LFDIFromFingerprint derives the LFDI from a SHA-256 certificate fingerprint
// (64 hex chars) by left truncating it to 160 bits (40 hex chars).
func LFDIFromFingerprint(fingerprint string) (string, error) {
	if !IsValidSHA256Hex(fingerprint) {
		return "", errors.New("sep2: not a valid SHA-256 fingerprint")
	}
	return strings.ToLower(fingerprint[:40]), nil
}

// SFDIFromLFDI derives the Short-Form Device Identifier from an LFDI
// (section 6.3.3): the first 36 bits as a decimal number with a sum-of-digits
// checksum digit appended.
func SFDIFromLFDI(lfdi string) (int64, error) {
	if len(lfdi) != 40 {
		return 0, fmt.Errorf("sep2: lfdi should be 40 hex characters, got %d", len(lfdi))
	}
	raw, err := parseHexUint(lfdi[:9])
	if err != nil {
		return 0, fmt.Errorf("sep2: lfdi is not hexadecimal: %w", err)
	}
	checksum := (10 - (sumDigits(raw) % 10)) % 10
	return raw*10 + checksum, nil
}

func parseHexUint(s string) (int64, error) {
	var v int64
	for _, c := range s {
		var d int64
		switch {
		case c >= '0' && c <= '9':
			d = int64(c - '0')
		case c >= 'a' && c <= 'f':
			d = int64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int64(c-'A') + 10
		default:
			return 0, fmt.Errorf("invalid hex char %q", c)
		}
		v = v<<4 | d
	}
	return v, nil
}

func sumDigits(n int64) int64 {
	if n < 0 {
		n = -n
	}
	var s int64
	for n > 0 {
		s += n % 10
		n /= 10
	}
	return s
}

// NewMRID generates a random 32 hex char mRID (lower case).
func NewMRID() string {
	id := uuid.New()
	return strings.ToLower(hex.EncodeToString(id[:]))
}

// NormalizeMRID lower-cases an mRID so comparisons and storage are case
// insensitive, per the standard.
func NormalizeMRID(mrid string) string {
	return strings.ToLower(mrid)
}
