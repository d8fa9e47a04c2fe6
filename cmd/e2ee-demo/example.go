package main

import (
	"fmt"
	"strings"
)

func showExamples() {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║      e2ee-media: Interactive Examples                    ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	examples := []struct {
		title       string
		description string
		code        string
	}{
		{
			title:       "Example 1: Basic Encrypt/Decrypt",
			description: "Round-trip a single media frame through the Encryptor and Decryptor",
			code: `package main

import (
    "fmt"
    "time"
    "github.com/pzverkov/e2ee-media/internal/constants"
    "github.com/pzverkov/e2ee-media/pkg/clock"
    "github.com/pzverkov/e2ee-media/pkg/e2ee"
    "github.com/pzverkov/e2ee-media/pkg/ratchet"
)

func main() {
    key := ratchet.MakeStaticSenderKey("user-1234")
    keyRatchet := ratchet.NewStaticKeyRatchet(key)

    enc := e2ee.NewEncryptor()
    enc.SetKeyRatchet(keyRatchet)
    enc.AssignSsrcToCodec(42, constants.CodecOpus)

    plaintext := []byte("opus frame bytes")
    ciphertext := make([]byte, enc.GetMaxCiphertextByteSize(len(plaintext)))
    n, _ := enc.Encrypt(constants.MediaAudio, 42, plaintext, ciphertext)

    dec := e2ee.NewDecryptor(clock.Real())
    dec.TransitionToKeyRatchet(keyRatchet, constants.DefaultTransitionDuration)

    recovered := make([]byte, dec.GetMaxPlaintextByteSize(n))
    m, _ := dec.Decrypt(constants.MediaAudio, ciphertext[:n], recovered)
    fmt.Printf("Recovered: %s\n", recovered[:m])
}`,
		},
		{
			title:       "Example 2: Ratchet Transitions",
			description: "Rotating to a new hash ratchet while still accepting frames sent just before the switch",
			code: `package main

import (
    "time"
    "github.com/pzverkov/e2ee-media/internal/constants"
    "github.com/pzverkov/e2ee-media/pkg/e2ee"
    "github.com/pzverkov/e2ee-media/pkg/ratchet"
)

func onMemberRotatesKey(dec *e2ee.Decryptor, newSecret []byte) {
    next := ratchet.NewShakeKeyRatchet(newSecret)
    // Frames sent on the old ratchet are still accepted for
    // DefaultTransitionDuration after the new one takes over.
    dec.TransitionToKeyRatchet(next, constants.DefaultTransitionDuration)
}`,
		},
		{
			title:       "Example 3: Passthrough Mode",
			description: "Accepting unencrypted frames during a DAVE protocol downgrade window",
			code: `package main

import (
    "time"
    "github.com/pzverkov/e2ee-media/internal/constants"
    "github.com/pzverkov/e2ee-media/pkg/e2ee"
)

func enablePassthroughFallback(enc *e2ee.Encryptor, dec *e2ee.Decryptor) {
    enc.SetPassthroughMode(true)
    dec.TransitionToPassthroughMode(true, constants.DefaultTransitionDuration)

    // ... once every participant has reconnected with E2EE enabled:
    enc.SetPassthroughMode(false)
    dec.TransitionToPassthroughMode(false, constants.DefaultTransitionDuration)
}`,
		},
		{
			title:       "Example 4: Observability",
			description: "Wiring Collector metrics, tracing spans, and health checks into the transform pipeline",
			code: `package main

import (
    "github.com/pzverkov/e2ee-media/pkg/e2ee"
    "github.com/pzverkov/e2ee-media/pkg/health"
    "github.com/pzverkov/e2ee-media/pkg/metrics"
)

func wireObservability(enc *e2ee.Encryptor, dec *e2ee.Decryptor) *metrics.Server {
    collector := metrics.NewCollector(metrics.Labels{"service": "voice-gateway"})
    metrics.SetGlobal(collector)

    observer := metrics.NewFrameObserver(metrics.FrameObserverConfig{Collector: collector})
    enc.SetObserver(observer)
    dec.SetObserver(observer)

    server := metrics.NewServer(metrics.ServerConfig{
        Collector:        collector,
        EnablePrometheus: true,
        EnableHealth:     true,
    })
    server.AddHealthCheck("encryptor", health.EncryptorReady(enc))
    server.AddHealthCheck("decryptor", health.DecryptorReady(dec))
    return server
}`,
		},
		{
			title:       "Example 5: Error Handling",
			description: "Distinguishing invalid-input errors from decryption failures",
			code: `package main

import (
    "errors"
    "log"
    "github.com/pzverkov/e2ee-media/internal/constants"
    qerrors "github.com/pzverkov/e2ee-media/internal/errors"
    "github.com/pzverkov/e2ee-media/pkg/e2ee"
)

func decryptFrame(dec *e2ee.Decryptor, mediaType constants.MediaType, frame, out []byte) {
    if _, err := dec.Decrypt(mediaType, frame, out); err != nil {
        switch {
        case errors.Is(err, qerrors.ErrInvalidMediaType):
            log.Printf("caller passed an invalid media type")
        case errors.Is(err, qerrors.ErrDecryptionFailed):
            log.Printf("frame could not be authenticated, dropping")
        default:
            log.Printf("decrypt error: %v", err)
        }
    }
}`,
		},
		{
			title:       "Example 6: Security Best Practices",
			description: "Important considerations when deploying the frame transform",
			code: `package main

func securityChecklist() {
    // BEST PRACTICE 1: the frame transform encrypts media payloads only.
    // Signaling, membership, and ratchet-key distribution belong to the
    // surrounding MLS group session, not to this package.

    // BEST PRACTICE 2: always call TransitionToPassthroughMode(false, ...)
    // once every participant in the call supports E2EE, closing the
    // downgrade window an attacker could otherwise hold open.

    // BEST PRACTICE 3: monitor replayed-nonce and ratchet-transition
    // counters via the observability server; a sustained rise in
    // replayed nonces can indicate a replay attack in progress.

    // BEST PRACTICE 4: size ciphertext buffers with
    // GetMaxCiphertextByteSize/GetMaxPlaintextByteSize rather than
    // guessing, to avoid truncated output on larger codec frames.
}`,
		},
	}

	for i, ex := range examples {
		fmt.Printf("┌%s┐\n", strings.Repeat("─", 58))
		fmt.Printf("│ %s%s │\n", ex.title, strings.Repeat(" ", 58-len(ex.title)-2))
		fmt.Printf("└%s┘\n", strings.Repeat("─", 58))
		fmt.Println()
		fmt.Println(ex.description)
		fmt.Println()
		fmt.Println(ex.code)
		fmt.Println()

		if i < len(examples)-1 {
			fmt.Println()
		}
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                    Next Steps                             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Try the demo:")
	fmt.Println("  e2ee-demo demo --verbose")
	fmt.Println()
	fmt.Println("Run benchmarks:")
	fmt.Println("  e2ee-demo bench --frames 100000 --size 1200")
	fmt.Println()
}
