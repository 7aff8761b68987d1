// Package httpsig implements the HTTP Signature scheme as defined in draft-cavage-http-signatures-10.
package httpsig

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// RequestTarget is the pseudo-header used to sign the request target.
	RequestTarget = "(request-target)"

	// dateFormat is http.TimeFormat, Date must be in GMT, not UTC 🤯
	dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// Sign signs the request using the given keyID and privateKey.
// POST requests also carry a Digest header computed over body.
func Sign(req *http.Request, keyID string, privateKey crypto.PrivateKey, body []byte) error {
	key, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return errors.New("httpsig: only rsa private keys are supported")
	}
	req.Header.Set("Date", time.Now().UTC().Format(dateFormat))
	headers := []string{RequestTarget}
	switch req.Method {
	case http.MethodGet:
		headers = append(headers, "host", "date", "accept")
	case http.MethodPost:
		req.Header.Set("Digest", Digest(body))
		headers = append(headers, "host", "date", "digest")
	}

	s, err := signingString(req, headers)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(s)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, sum[:])
	if err != nil {
		return err
	}
	req.Header.Set("Signature", fmt.Sprintf(`keyId="%s",algorithm="rsa-sha256",headers="%s",signature="%s"`,
		keyID, strings.Join(headers, " "), base64.StdEncoding.EncodeToString(sig)))
	return nil
}

// Digest returns the value of the Digest header for body.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

func signingString(req *http.Request, headers []string) ([]byte, error) {
	var sb bytes.Buffer
	for i, header := range headers {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch h := strings.ToLower(header); h {
		case RequestTarget:
			fmt.Fprintf(&sb, "%s: %s %s", RequestTarget, strings.ToLower(req.Method), req.URL.Path)
			if req.URL.RawQuery != "" {
				sb.WriteString("?" + req.URL.RawQuery)
			}
		case "host":
			host := req.Host
			if host == "" {
				host = req.URL.Host
			}
			fmt.Fprintf(&sb, "host: %s", host)
		case "date", "accept", "digest":
			fmt.Fprintf(&sb, "%s: %s", h, req.Header.Get(h))
		default:
			return nil, fmt.Errorf("unknown header to sign: %s", header)
		}
	}
	return sb.Bytes(), nil
}
