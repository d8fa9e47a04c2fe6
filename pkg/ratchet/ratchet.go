// Package ratchet defines the abstract key-ratchet boundary this module
// consumes: per-generation symmetric keys are supplied by an external MLS
// exported secret ratchet, never derived here. It also provides two
// concrete implementations useful for tests, demos, and the CLI: a static
// ratchet derived from a numeric identity, and a SHAKE-256 ratchet derived
// from a shared root secret.
package ratchet

import (
	"encoding/binary"
	"strconv"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/pzverkov/e2ee-media/internal/constants"
)

// KeyRatchet supplies per-generation symmetric keys and lets the caller
// release key material for generations it no longer needs.
type KeyRatchet interface {
	// GetKey returns the AESKeySize-byte key for generation.
	GetKey(generation uint32) []byte

	// DeleteKey releases any cached material for generation.
	DeleteKey(generation uint32)
}

// StaticKeyRatchet derives every generation's key from a single 16-byte
// root key verbatim (the simplest possible ratchet: no rotation). Grounded
// on the original implementation's test-only MakeStaticSenderKey helper.
type StaticKeyRatchet struct {
	key []byte
}

// NewStaticKeyRatchet returns a ratchet that always hands back key,
// regardless of generation.
func NewStaticKeyRatchet(key []byte) *StaticKeyRatchet {
	k := make([]byte, constants.AESKeySize)
	copy(k, key)
	return &StaticKeyRatchet{key: k}
}

// MakeStaticSenderKey builds a deterministic 16-byte key for userID by
// parsing it as a decimal integer and duplicating its 8-byte big-endian
// form, matching the original implementation's test fixture construction.
func MakeStaticSenderKey(userID string) []byte {
	id, _ := strconv.ParseUint(userID, 10, 64)
	key := make([]byte, constants.AESKeySize)
	binary.BigEndian.PutUint64(key[0:8], id)
	binary.BigEndian.PutUint64(key[8:16], id)
	return key
}

func (r *StaticKeyRatchet) GetKey(generation uint32) []byte { return r.key }
func (r *StaticKeyRatchet) DeleteKey(generation uint32)     {}

// ShakeKeyRatchet derives a fresh key per generation from a shared root
// secret via SHAKE-256, using the same domain-separated
// secret-concatenated-with-context construction as a transcript-based KDF.
// Derived keys are cached so repeated GetKey calls for the same generation
// are cheap; DeleteKey drops a generation's key from the cache but does not
// zero its bytes.
type ShakeKeyRatchet struct {
	mu     sync.Mutex
	secret []byte
	cache  map[uint32][]byte
}

const shakeKeyRatchetDomain = "e2ee-media-frame-ratchet-v1"

// NewShakeKeyRatchet derives generation keys from secret via SHAKE-256.
func NewShakeKeyRatchet(secret []byte) *ShakeKeyRatchet {
	s := make([]byte, len(secret))
	copy(s, secret)
	return &ShakeKeyRatchet{secret: s, cache: make(map[uint32][]byte)}
}

func (r *ShakeKeyRatchet) GetKey(generation uint32) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key, ok := r.cache[generation]; ok {
		return key
	}

	h := sha3.NewShake256()
	h.Write([]byte(shakeKeyRatchetDomain))
	h.Write(r.secret)
	var genBytes [4]byte
	binary.BigEndian.PutUint32(genBytes[:], generation)
	h.Write(genBytes[:])

	key := make([]byte, constants.AESKeySize)
	_, _ = h.Read(key)

	r.cache[generation] = key
	return key
}

func (r *ShakeKeyRatchet) DeleteKey(generation uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, generation)
}
