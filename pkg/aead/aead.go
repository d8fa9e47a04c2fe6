// Package aead implements the single fixed authenticated-encryption
// primitive used to seal and open media frame ciphertext: AES-128-GCM with
// an 8-byte truncated authentication tag and a 12-byte nonce whose low 4
// bytes carry the wire-visible truncated synchronization nonce.
//
// Go's standard library GCM implementation refuses tag sizes below 12
// bytes, so the truncated-tag variant is implemented directly against
// crypto/aes block encryption and CTR mode, computing the full GHASH-based
// tag and comparing only its leading TruncatedTagSize bytes — the same
// construction BoringSSL's scatter/gather AEAD API uses for a
// short-tag AES-GCM AEAD.
//
// Security: IND-CCA2 secure under the standard AES-GCM assumptions, with a
// shortened 64-bit tag. Every (key, nonce) pair MUST be used at most once;
// callers (pkg/cryptor) are responsible for nonce uniqueness per key.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"

	"github.com/pzverkov/e2ee-media/internal/constants"
	qerrors "github.com/pzverkov/e2ee-media/internal/errors"
)

// Cryptor seals and opens frame payloads under a single fixed key.
type Cryptor interface {
	// Encrypt writes len(plaintext) bytes of ciphertext into dst and the
	// truncated authentication tag into tag. dst and plaintext may alias.
	Encrypt(dst, plaintext, nonce, additionalData, tag []byte) error

	// Decrypt verifies tag against ciphertext+additionalData under nonce
	// and, on success, writes the plaintext into dst. dst and ciphertext
	// may alias.
	Decrypt(dst, ciphertext, nonce, additionalData, tag []byte) error
}

type aesGCMCryptor struct {
	block cipher.Block
}

// CreateCryptor builds a Cryptor from a 16-byte AES-128 key.
func CreateCryptor(key []byte) (Cryptor, error) {
	if len(key) != constants.AESKeySize {
		return nil, qerrors.ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, qerrors.NewCryptoError("CreateCryptor", err)
	}
	return &aesGCMCryptor{block: block}, nil
}

func (c *aesGCMCryptor) Encrypt(dst, plaintext, nonce, additionalData, tag []byte) error {
	if len(nonce) != constants.AESNonceSize {
		return qerrors.ErrInvalidNonce
	}
	if len(tag) != constants.TruncatedTagSize {
		return qerrors.ErrInvalidKeySize
	}

	ciphertext := gctr(c.block, nonce, plaintext)
	copy(dst, ciphertext)

	fullTag := computeTag(c.block, nonce, additionalData, ciphertext)
	copy(tag, fullTag[:constants.TruncatedTagSize])
	return nil
}

func (c *aesGCMCryptor) Decrypt(dst, ciphertext, nonce, additionalData, tag []byte) error {
	if len(nonce) != constants.AESNonceSize {
		return qerrors.ErrInvalidNonce
	}
	if len(tag) != constants.TruncatedTagSize {
		return qerrors.ErrInvalidKeySize
	}

	expected := computeTag(c.block, nonce, additionalData, ciphertext)
	if subtle.ConstantTimeCompare(expected[:constants.TruncatedTagSize], tag) != 1 {
		return qerrors.ErrAuthenticationFailed
	}

	plaintext := gctr(c.block, nonce, ciphertext)
	copy(dst, plaintext)
	return nil
}

const blockSize = 16

// counterBlock builds the 16-byte GCM counter block J0+1 used to start the
// CTR-mode keystream for a 96-bit nonce, per NIST SP 800-38D section 7.2.
func counterBlock(nonce []byte) []byte {
	ctr := make([]byte, blockSize)
	copy(ctr, nonce)
	binary.BigEndian.PutUint32(ctr[12:], 2)
	return ctr
}

// j0Block builds the GCM pre-counter block J0 for a 96-bit nonce.
func j0Block(nonce []byte) []byte {
	j0 := make([]byte, blockSize)
	copy(j0, nonce)
	binary.BigEndian.PutUint32(j0[12:], 1)
	return j0
}

func gctr(block cipher.Block, nonce, in []byte) []byte {
	stream := cipher.NewCTR(block, counterBlock(nonce))
	out := make([]byte, len(in))
	stream.XORKeyStream(out, in)
	return out
}

// computeTag derives the full 16-byte GCM authentication tag for
// (nonce, additionalData, ciphertext) via GHASH, per NIST SP 800-38D.
func computeTag(block cipher.Block, nonce, additionalData, ciphertext []byte) [blockSize]byte {
	var h [blockSize]byte
	block.Encrypt(h[:], make([]byte, blockSize))

	input := make([]byte, 0, padLen(len(additionalData))+padLen(len(ciphertext))+blockSize)
	input = append(input, padBlock(additionalData)...)
	input = append(input, padBlock(ciphertext)...)

	var lengths [blockSize]byte
	binary.BigEndian.PutUint64(lengths[0:8], uint64(len(additionalData))*8)
	binary.BigEndian.PutUint64(lengths[8:16], uint64(len(ciphertext))*8)
	input = append(input, lengths[:]...)

	s := ghash(h, input)

	var encJ0 [blockSize]byte
	block.Encrypt(encJ0[:], j0Block(nonce))

	var tag [blockSize]byte
	for i := range tag {
		tag[i] = s[i] ^ encJ0[i]
	}
	return tag
}

func padLen(n int) int {
	if n%blockSize == 0 {
		return n
	}
	return n + (blockSize - n%blockSize)
}

func padBlock(b []byte) []byte {
	out := make([]byte, padLen(len(b)))
	copy(out, b)
	return out
}
