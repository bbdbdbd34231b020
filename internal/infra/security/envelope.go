package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	publicKeyFile  = "public.pem"
	privateKeyFile = "private.pem"
)

var (
	// ErrDecryption indicates a sealed payload could not be opened with the private key.
	ErrDecryption = errors.New("envelope: decryption failed")
	// ErrPayloadTooLarge indicates the payload exceeds what one RSA-OAEP block can carry.
	ErrPayloadTooLarge = errors.New("envelope: payload exceeds key block size")
)

// Envelope seals JSON payloads with RSA-OAEP. It is immutable once constructed.
type Envelope struct {
	public  *rsa.PublicKey
	private *rsa.PrivateKey
}

// LoadEnvelope reads public.pem and private.pem from dir. Any missing or unparsable key is an error.
func LoadEnvelope(dir string) (*Envelope, error) {
	public, err := readPublicKey(filepath.Join(dir, publicKeyFile))
	if err != nil {
		return nil, err
	}

	private, err := readPrivateKey(filepath.Join(dir, privateKeyFile))
	if err != nil {
		return nil, err
	}

	return NewEnvelope(public, private)
}

// NewEnvelope builds an envelope from an already parsed key pair.
func NewEnvelope(public *rsa.PublicKey, private *rsa.PrivateKey) (*Envelope, error) {
	if public == nil || private == nil {
		return nil, errors.New("envelope: both keys are required")
	}
	if !private.PublicKey.Equal(public) {
		return nil, errors.New("envelope: public key does not match private key")
	}
	return &Envelope{public: public, private: private}, nil
}

// MaxPayload is the largest JSON encoding Seal accepts.
func (e *Envelope) MaxPayload() int {
	return e.public.Size() - 2*sha1.Size - 2
}

// Seal JSON-encodes payload, encrypts it with the public key and returns base64 text.
func (e *Envelope) Seal(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("envelope: marshal payload: %w", err)
	}
	if len(data) > e.MaxPayload() {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(data), e.MaxPayload())
	}

	ciphertext, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, e.public, data, nil)
	if err != nil {
		return "", fmt.Errorf("envelope: encrypt: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal and decodes the JSON payload into out.
func (e *Envelope) Open(sealed string, out any) error {
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return fmt.Errorf("%w: decode: %v", ErrDecryption, err)
	}

	plaintext, err := rsa.DecryptOAEP(sha1.New(), nil, e.private, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", ErrDecryption, err)
	}

	return nil
}

func readPEMBlock(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from %s", path)
	}
	return block, nil
}

func readPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEMBlock(path)
	if err != nil {
		return nil, err
	}

	// PKCS#1 (RSA PRIVATE KEY)
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	// PKCS#8 (PRIVATE KEY)
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("key in %s is not an RSA private key", path)
	}

	return nil, fmt.Errorf("failed to parse private key from file %s", path)
}

func readPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEMBlock(path)
	if err != nil {
		return nil, err
	}

	// PKCS#1 (RSA PUBLIC KEY)
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	// PKIX (PUBLIC KEY)
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("key in %s is not an RSA public key", path)
	}

	return nil, fmt.Errorf("failed to parse public key from file %s", path)
}
