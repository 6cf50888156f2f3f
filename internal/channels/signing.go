package channels

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

// Signer produces webhook signatures with a per organization key derived from
// one master secret.
type Signer struct {
	master []byte
}

func NewSigner(masterSecret string) *Signer {
	return &Signer{master: []byte(masterSecret)}
}

func (s *Signer) key(organizationID string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.master, nil, []byte("courseflow webhook "+organizationID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>".
func (s *Signer) Sign(organizationID string, timestamp int64, body []byte) (string, error) {
	key, err := s.key(organizationID)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify is the receiving side of Sign.
func (s *Signer) Verify(organizationID string, timestamp int64, body []byte, signature string) bool {
	expected, err := s.Sign(organizationID, timestamp, body)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
