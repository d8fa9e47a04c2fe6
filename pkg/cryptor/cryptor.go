// Package cryptor manages the set of per-generation AEAD cryptors backing
// a single sender's ratchet: it derives cryptors lazily from a KeyRatchet,
// bounds how far a generation can drift from the newest one seen, tracks
// which sync nonces have already been processed to reject replays, and
// expires old cryptors once a newer generation has been confirmed.
package cryptor

import (
	"time"

	"github.com/pzverkov/e2ee-media/internal/constants"
	"github.com/pzverkov/e2ee-media/pkg/aead"
	"github.com/pzverkov/e2ee-media/pkg/clock"
	"github.com/pzverkov/e2ee-media/pkg/ratchet"
)

// BigNonce is a generation-and-nonce pair collapsed into a single
// monotonically comparable 64-bit value, used to detect replays across
// generation boundaries.
type BigNonce = uint64

// ComputeWrappedGeneration reconstructs the full, unwrapped generation
// number from a truncated one-byte generation and the oldest generation
// still tracked, assuming generation is at or after oldest (a violation of
// that assumption is caught downstream by the max-generation-gap check).
func ComputeWrappedGeneration(oldest, generation uint32) uint32 {
	remainder := oldest % constants.GenerationWrap
	factor := oldest / constants.GenerationWrap
	if generation < remainder {
		factor++
	}
	return factor*constants.GenerationWrap + generation
}

// ComputeWrappedBigNonce folds the low truncated-nonce bits together with
// the unwrapped generation into a single comparable value.
func ComputeWrappedBigNonce(generation uint32, nonce uint32) BigNonce {
	maskedNonce := nonce & (1<<constants.RatchetGenerationShiftBits - 1)
	return BigNonce(generation)<<constants.RatchetGenerationShiftBits | BigNonce(maskedNonce)
}

type expiringCryptor struct {
	cryptor aead.Cryptor
	expiry  time.Time
}

var timeMax = time.Unix(1<<62, 0)

// Manager owns every live cryptor for one sender's key ratchet, creating
// and expiring them as generations advance.
type Manager struct {
	clock      clock.Clock
	keyRatchet ratchet.KeyRatchet

	cryptors map[uint32]expiringCryptor

	ratchetCreation time.Time
	ratchetExpiry   time.Time

	oldestGeneration uint32
	newestGeneration uint32

	hasNewestProcessedNonce bool
	newestProcessedNonce    BigNonce
	missingNonces           []BigNonce
}

// NewManager returns a Manager that derives cryptors from keyRatchet and
// measures lifetimes against clock.
func NewManager(c clock.Clock, keyRatchet ratchet.KeyRatchet) *Manager {
	now := c.Now()
	return &Manager{
		clock:           c,
		keyRatchet:      keyRatchet,
		cryptors:        make(map[uint32]expiringCryptor),
		ratchetCreation: now,
		ratchetExpiry:   timeMax,
	}
}

// UpdateExpiry sets the time after which IsExpired reports true.
func (m *Manager) UpdateExpiry(expiry time.Time) { m.ratchetExpiry = expiry }

// IsExpired reports whether the ratchet this manager serves has expired.
func (m *Manager) IsExpired() bool { return m.clock.Now().After(m.ratchetExpiry) }

// CanProcessNonce reports whether a frame carrying generation and nonce is
// newer than anything already processed, or was previously flagged missing
// (i.e. arrived out of order and hasn't been consumed yet). The very first
// frame is always accepted.
func (m *Manager) CanProcessNonce(generation uint32, nonce uint32) bool {
	if !m.hasNewestProcessedNonce {
		return true
	}

	bigNonce := ComputeWrappedBigNonce(generation, nonce)
	if bigNonce > m.newestProcessedNonce {
		return true
	}
	for _, missing := range m.missingNonces {
		if missing == bigNonce {
			return true
		}
	}
	return false
}

// ComputeWrappedGeneration unwraps generation relative to this manager's
// current oldest tracked generation.
func (m *Manager) ComputeWrappedGeneration(generation uint32) uint32 {
	return ComputeWrappedGeneration(m.oldestGeneration, generation)
}

// GetCryptor returns the cryptor for generation, lazily deriving it from
// the key ratchet on first use. It returns false if generation falls
// outside the window this manager will accept: older than the oldest
// generation still tracked, further ahead than the max allowed generation
// gap, or beyond what the ratchet's observed lifetime could plausibly have
// produced.
func (m *Manager) GetCryptor(generation uint32) (aead.Cryptor, bool) {
	m.CleanupExpiredCryptors()

	if generation < m.oldestGeneration {
		return nil, false
	}
	if generation > m.newestGeneration+constants.MaxGenerationGap {
		return nil, false
	}

	ratchetLifetimeSec := int64(m.clock.Now().Sub(m.ratchetCreation) / time.Second)
	maxLifetimeFrames := int64(constants.MaxFramesPerSecond) * ratchetLifetimeSec
	maxLifetimeGenerations := uint32(maxLifetimeFrames >> constants.RatchetGenerationShiftBits)
	if generation > maxLifetimeGenerations {
		return nil, false
	}

	ec, ok := m.cryptors[generation]
	if !ok {
		ec = m.makeExpiringCryptor(generation)
		m.cryptors[generation] = ec
	}

	return ec.cryptor, ec.cryptor != nil
}

// ReportCryptorSuccess records that a frame with generation and nonce was
// successfully decrypted, updating replay-detection state and, if
// generation is newer than anything previously confirmed and a cryptor for
// it exists, promoting it to the newest generation and collapsing the
// expiry of every older cryptor. A generation with no cryptor is never
// promoted.
func (m *Manager) ReportCryptorSuccess(generation uint32, nonce uint32) {
	bigNonce := ComputeWrappedBigNonce(generation, nonce)

	switch {
	case !m.hasNewestProcessedNonce:
		m.newestProcessedNonce = bigNonce
		m.hasNewestProcessedNonce = true

	case bigNonce > m.newestProcessedNonce:
		var oldestMissingNonce BigNonce
		if bigNonce > constants.MaxMissingNonces {
			oldestMissingNonce = bigNonce - constants.MaxMissingNonces
		}

		for len(m.missingNonces) > 0 && m.missingNonces[0] < oldestMissingNonce {
			m.missingNonces = m.missingNonces[1:]
		}

		missingRangeStart := oldestMissingNonce
		if m.newestProcessedNonce+1 > missingRangeStart {
			missingRangeStart = m.newestProcessedNonce + 1
		}
		for i := missingRangeStart; i < bigNonce; i++ {
			m.missingNonces = append(m.missingNonces, i)
		}

		m.newestProcessedNonce = bigNonce

	default:
		for i, missing := range m.missingNonces {
			if missing == bigNonce {
				m.missingNonces = append(m.missingNonces[:i], m.missingNonces[i+1:]...)
				break
			}
		}
	}

	if generation <= m.newestGeneration {
		return
	}
	if _, ok := m.cryptors[generation]; !ok {
		return
	}
	m.newestGeneration = generation

	expiryTime := m.clock.Now().Add(constants.CryptorExpiry)
	for gen, ec := range m.cryptors {
		if gen < m.newestGeneration {
			if ec.expiry.After(expiryTime) {
				ec.expiry = expiryTime
				m.cryptors[gen] = ec
			}
		}
	}
}

// makeExpiringCryptor derives a new cryptor for generation from the key
// ratchet. Generations older than the current newest one are given a
// finite expiry since a newer generation has already been confirmed;
// the current or future newest generation never expires on its own.
func (m *Manager) makeExpiringCryptor(generation uint32) expiringCryptor {
	key := m.keyRatchet.GetKey(generation)
	expiry := timeMax
	if generation < m.newestGeneration {
		expiry = m.clock.Now().Add(constants.CryptorExpiry)
	}

	c, err := aead.CreateCryptor(key)
	if err != nil {
		return expiringCryptor{cryptor: nil, expiry: expiry}
	}
	return expiringCryptor{cryptor: c, expiry: expiry}
}

// CleanupExpiredCryptors drops any cryptor whose expiry has passed, then
// advances oldestGeneration past every generation below newestGeneration
// that no longer has a live cryptor, releasing the ratchet key for each one
// it skips past.
func (m *Manager) CleanupExpiredCryptors() {
	now := m.clock.Now()
	for gen, ec := range m.cryptors {
		if ec.expiry.Before(now) {
			delete(m.cryptors, gen)
		}
	}

	for m.oldestGeneration < m.newestGeneration {
		if _, ok := m.cryptors[m.oldestGeneration]; ok {
			break
		}
		m.keyRatchet.DeleteKey(m.oldestGeneration)
		m.oldestGeneration++
	}
}
