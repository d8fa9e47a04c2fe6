// Package health wires named readiness checks for the encryptor and
// decryptor into the metrics package's HealthCheck/Server machinery.
package health

import (
	"errors"

	"github.com/pzverkov/e2ee-media/pkg/e2ee"
	"github.com/pzverkov/e2ee-media/pkg/metrics"
)

// EncryptorReady returns a CheckFunc that fails until enc has a key
// ratchet installed (Encrypt rejects every frame until then unless
// passthrough mode is enabled, which this check does not special-case).
func EncryptorReady(enc *e2ee.Encryptor) metrics.CheckFunc {
	return func() error {
		if !enc.HasKeyRatchet() {
			return errors.New("encryptor has no key ratchet installed")
		}
		return nil
	}
}

// DecryptorReady returns a CheckFunc that fails until dec has received
// at least one TransitionToKeyRatchet call whose cryptor manager has not
// yet expired.
func DecryptorReady(dec *e2ee.Decryptor) metrics.CheckFunc {
	return func() error {
		if !dec.HasLiveCryptorManager() {
			return errors.New("decryptor has no live cryptor manager")
		}
		return nil
	}
}

// NewCheck builds a metrics.HealthCheck pre-populated with the
// "encryptor" and "decryptor" readiness checks, backed by collector.
func NewCheck(collector *metrics.Collector, version string, enc *e2ee.Encryptor, dec *e2ee.Decryptor) *metrics.HealthCheck {
	h := metrics.NewHealthCheck(collector, version)
	if enc != nil {
		h.AddCheck("encryptor", EncryptorReady(enc))
	}
	if dec != nil {
		h.AddCheck("decryptor", DecryptorReady(dec))
	}
	return h
}
