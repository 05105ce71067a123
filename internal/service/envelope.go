package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"golang.org/x/crypto/hkdf"
)

// envelopePayload is the ephemeral plaintext carried inside the QR image. It
// is never persisted; the timestamp bounds one visual-channel transit.
type envelopePayload struct {
	Token    string `json:"t"`
	IssuedMS int64  `json:"ts"`
}

// EnvelopeCodec wraps a bare login token into an opaque, tamper-evident,
// timestamp-bound string and back. It is a pure transform keyed by a
// process-wide secret; all authorization stays with the lifecycle manager.
type EnvelopeCodec struct {
	aead  cipher.AEAD
	ttlMS int64
	clock Clock
}

// NewEnvelopeCodec derives an AES-256-GCM key from secret via HKDF-SHA256.
// ttlMS is the envelope staleness window in milliseconds, independent of the
// session deadline.
func NewEnvelopeCodec(secret []byte, ttlMS int64, clock Clock) (*EnvelopeCodec, error) {
	h := hkdf.New(sha256.New, secret, nil, []byte("qr-envelope"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if clock == nil {
		clock = RealClock{}
	}
	return &EnvelopeCodec{aead: aead, ttlMS: ttlMS, clock: clock}, nil
}

// Encode seals the token with a fresh random nonce. A repeated nonce would
// break GCM confidentiality across encodings, so the nonce is always drawn
// from crypto/rand.
func (c *EnvelopeCodec) Encode(token string) (string, error) {
	payload, err := json.Marshal(envelopePayload{
		Token:    token,
		IssuedMS: c.clock.Now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, payload, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens an envelope and returns the bare token. Any decryption or
// parsing failure is ErrMalformedEnvelope; a structurally valid envelope past
// its window is ErrEnvelopeExpired.
func (c *EnvelopeCodec) Decode(envelope string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(envelope)
	if err != nil {
		return "", ErrMalformedEnvelope
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", ErrMalformedEnvelope
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrMalformedEnvelope
	}

	var payload envelopePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return "", ErrMalformedEnvelope
	}
	if payload.Token == "" {
		return "", ErrMalformedEnvelope
	}

	if c.clock.Now().UnixMilli()-payload.IssuedMS > c.ttlMS {
		return "", ErrEnvelopeExpired
	}
	return payload.Token, nil
}
