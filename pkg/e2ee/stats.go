package e2ee

import "sync/atomic"

// mediaStats accumulates per-media-type counters, read and written by
// multiple goroutines (an Encryptor/Decryptor may be called concurrently
// for audio and video frames).
type mediaStats struct {
	encryptSuccessCount atomic.Uint64
	encryptFailureCount atomic.Uint64
	encryptAttempts     atomic.Uint64
	encryptMaxAttempts  atomic.Uint64
	encryptDurationNs   atomic.Int64
	passthroughCount    atomic.Uint64

	decryptSuccessCount atomic.Uint64
	decryptFailureCount atomic.Uint64
	decryptAttempts     atomic.Uint64
	decryptDurationNs   atomic.Int64
}

// Snapshot is a point-in-time copy of a media type's counters.
type Snapshot struct {
	EncryptSuccessCount uint64
	EncryptFailureCount uint64
	EncryptAttempts     uint64
	EncryptMaxAttempts  uint64
	PassthroughCount    uint64
	DecryptSuccessCount uint64
	DecryptFailureCount uint64
	DecryptAttempts     uint64
}

func (s *mediaStats) snapshot() Snapshot {
	return Snapshot{
		EncryptSuccessCount: s.encryptSuccessCount.Load(),
		EncryptFailureCount: s.encryptFailureCount.Load(),
		EncryptAttempts:     s.encryptAttempts.Load(),
		EncryptMaxAttempts:  s.encryptMaxAttempts.Load(),
		PassthroughCount:    s.passthroughCount.Load(),
		DecryptSuccessCount: s.decryptSuccessCount.Load(),
		DecryptFailureCount: s.decryptFailureCount.Load(),
		DecryptAttempts:     s.decryptAttempts.Load(),
	}
}

func (s *mediaStats) bumpMaxAttempts(attempt uint64) {
	for {
		cur := s.encryptMaxAttempts.Load()
		if attempt <= cur || s.encryptMaxAttempts.CompareAndSwap(cur, attempt) {
			return
		}
	}
}
