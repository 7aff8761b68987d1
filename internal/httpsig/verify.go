package httpsig

import (
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-fed/httpsig"
)

var (
	// ErrNoSignature is returned when the request carries no Signature header.
	ErrNoSignature = errors.New("httpsig: signature header is missing")

	// ErrDigestMismatch is returned when the Digest header does not match the body.
	ErrDigestMismatch = errors.New("httpsig: digest does not match body")

	// ErrMissingDigest is returned when a request with a body has no Digest header.
	ErrMissingDigest = errors.New("httpsig: digest header is missing")

	// ErrHeaderNotSigned is returned when the signature does not cover a required header.
	ErrHeaderNotSigned = errors.New("httpsig: required header is not signed")

	// ErrClockSkew is returned when the Date header is too far from now.
	ErrClockSkew = errors.New("httpsig: date outside of allowed skew")
)

// MaxSkew is the largest difference tolerated between the Date header and the local clock.
const MaxSkew = 12 * time.Hour

// KeyID returns the keyId parameter of the request's signature.
func KeyID(req *http.Request) (string, error) {
	if req.Header.Get("Signature") == "" && req.Header.Get("Authorization") == "" {
		return "", ErrNoSignature
	}
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", err
	}
	return verifier.KeyId(), nil
}

// Verify checks the request's signature against pubKey. body is the raw
// request body. The signature must cover the request target and the Date
// header, and for requests other than GET and HEAD the Digest header too,
// which must match body.
func Verify(req *http.Request, body []byte, pubKey crypto.PublicKey) error {
	if req.Header.Get("Signature") == "" && req.Header.Get("Authorization") == "" {
		return ErrNoSignature
	}
	required := []string{RequestTarget, "date"}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		digest := req.Header.Get("Digest")
		if digest == "" {
			return ErrMissingDigest
		}
		if !digestEqual(digest, Digest(body)) {
			return ErrDigestMismatch
		}
		required = append(required, "digest")
	}
	signed, err := signedHeaders(req.Header)
	if err != nil {
		return err
	}
	for _, h := range required {
		if !signed[h] {
			return fmt.Errorf("%w: %s", ErrHeaderNotSigned, h)
		}
	}

	t, err := http.ParseTime(req.Header.Get("Date"))
	if err != nil {
		return fmt.Errorf("httpsig: invalid date %q: %w", req.Header.Get("Date"), err)
	}
	if d := time.Since(t); d > MaxSkew || d < -MaxSkew {
		return ErrClockSkew
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return err
	}
	return verifier.Verify(pubKey, httpsig.RSA_SHA256)
}

// digestEqual compares two Digest header values, the algorithm name is case insensitive.
func digestEqual(a, b string) bool {
	algA, sumA, okA := strings.Cut(a, "=")
	algB, sumB, okB := strings.Cut(b, "=")
	return okA && okB && strings.EqualFold(algA, algB) && sumA == sumB
}

// signedHeaders returns the lower cased names listed in the headers parameter
// of the request's signature. It reads the same header go-fed/httpsig does.
// A signature without a headers parameter covers only the Date header.
func signedHeaders(h http.Header) (map[string]bool, error) {
	hasParams := func(s string) bool {
		return strings.Contains(s, "keyId") || strings.Contains(s, "headers") || strings.Contains(s, "signature")
	}
	sig := h.Get("Signature")
	if !hasParams(sig) {
		sig = strings.TrimPrefix(h.Get("Authorization"), "Signature ")
	}
	names := []string{"date"}
	for _, param := range strings.Split(sig, ",") {
		k, v, ok := strings.Cut(param, "=")
		if !ok {
			return nil, fmt.Errorf("httpsig: malformed signature parameter %q", param)
		}
		if k == "headers" {
			names = strings.Split(strings.Trim(v, `"`), " ")
		}
	}
	signed := make(map[string]bool, len(names))
	for _, name := range names {
		signed[strings.ToLower(name)] = true
	}
	return signed, nil
}
