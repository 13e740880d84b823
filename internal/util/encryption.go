package util

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	apperrors "github.com/a11ylint/a11ylint-server/internal/errors"
)

const (
	blobDelimiter = ":"
	ivLength      = aes.BlockSize
	derivedKeyLen = 32
)

// Codec encrypts credentials with AES-256-CBC under a key derived from the
// server secret. Blobs are hex(iv) + ":" + hex(ciphertext).
//
// The secret is checked on every call rather than at construction so a
// missing ENCRYPTION_KEY fails each request consistently instead of
// preventing startup.
type Codec struct {
	secret string
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: secret}
}

// Configured reports whether a secret is set.
func (c *Codec) Configured() bool {
	return c != nil && c.secret != ""
}

// Encrypt accepts only valid UTF-8 so that every blob it produces decrypts
// back to the same string.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	key, err := c.key()
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(plaintext) {
		return "", apperrors.Format("Plaintext must be valid UTF-8.")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	iv := make([]byte, ivLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + blobDelimiter + hex.EncodeToString(ciphertext), nil
}

func (c *Codec) Decrypt(blob string) (string, error) {
	key, err := c.key()
	if err != nil {
		return "", err
	}

	ivHex, ctHex, ok := strings.Cut(blob, blobDelimiter)
	if !ok {
		return "", apperrors.Format("Invalid encrypted text format.")
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != ivLength {
		return "", apperrors.Format("Invalid initialization vector.")
	}

	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", apperrors.Format("Invalid ciphertext encoding.")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", apperrors.Crypto(errors.New("ciphertext is not a whole number of blocks"))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", apperrors.Crypto(err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", apperrors.Crypto(err)
	}
	if !utf8.Valid(unpadded) {
		return "", apperrors.Crypto(errors.New("plaintext is not valid UTF-8"))
	}

	return string(unpadded), nil
}

// key derives the AES key the same way the serverless functions do: the
// first 32 characters of base64(sha256(secret)), used as raw key bytes.
// Cookies are therefore portable between deployments sharing a secret.
func (c *Codec) key() ([]byte, error) {
	if !c.Configured() {
		return nil, apperrors.Config("ENCRYPTION_KEY environment variable is not set.")
	}
	sum := sha256.Sum256([]byte(c.secret))
	encoded := base64.StdEncoding.EncodeToString(sum[:])
	return []byte(encoded[:derivedKeyLen]), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("bad decrypt")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("bad decrypt")
		}
	}
	return data[:len(data)-padding], nil
}
