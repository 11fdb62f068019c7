// SPDX-License-Identifier: MIT

// Package vault seals and stores the machine-bound license record. The
// on-disk artifact is raw AES-256-CBC ciphertext of a JSON record, keyed by
// material derived from the machine fingerprint. There is no header and no
// MAC; a decryption or padding failure is the integrity check.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

// ErrCorruptOrTampered is returned when the artifact cannot be opened: it was
// modified on disk, truncated, or sealed on a different machine or user
// account. Not retriable; operator action is required.
var ErrCorruptOrTampered = errors.New("sealed artifact is corrupt or bound to another machine")

// Key-derivation parameters. These are part of the artifact wire format and
// must never change, or previously sealed artifacts become unreadable.
const (
	kdfSalt       = "YourSuperSalt!@#"
	kdfIterations = 100_000
	kdfOutputLen  = 48 // 32-byte AES key followed by 16-byte CBC IV
)

func deriveKeyIV(fingerprint string) (key, iv []byte) {
	material := pbkdf2.Key([]byte(fingerprint), []byte(kdfSalt), kdfIterations, kdfOutputLen, sha256.New)
	return material[:32], material[32:]
}

// Seal encrypts plaintext under a key derived from the fingerprint.
func Seal(plaintext []byte, fingerprint string) ([]byte, error) {
	key, iv := deriveKeyIV(fingerprint)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// Open decrypts ciphertext sealed with the same fingerprint. Any structural
// or padding failure reports ErrCorruptOrTampered.
func Open(ciphertext []byte, fingerprint string) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrCorruptOrTampered
	}

	key, iv := deriveKeyIV(fingerprint)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)

	plain, ok := pkcs7Unpad(out, aes.BlockSize)
	if !ok {
		return nil, ErrCorruptOrTampered
	}
	return plain, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(pad)}, pad)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, false
		}
	}
	return data[:len(data)-pad], true
}
