package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pzverkov/e2ee-media/internal/constants"
	"github.com/pzverkov/e2ee-media/pkg/clock"
	"github.com/pzverkov/e2ee-media/pkg/e2ee"
	"github.com/pzverkov/e2ee-media/pkg/ratchet"
)

func runBench(frameCount, frameSize int, mediaStr string) {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║      e2ee-media Frame Transform Benchmark                ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	mediaType, codec, err := parseMedia(mediaStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if frameCount <= 0 || frameSize <= 0 {
		fmt.Println("Nothing to benchmark. Use --frames and --size")
		fmt.Println("Run 'e2ee-demo bench --help' for usage")
		os.Exit(1)
	}

	benchEncryptDecrypt(frameCount, frameSize, mediaType, codec)
}

func parseMedia(s string) (constants.MediaType, constants.Codec, error) {
	switch strings.ToLower(s) {
	case "audio":
		return constants.MediaAudio, constants.CodecOpus, nil
	case "video":
		return constants.MediaVideo, constants.CodecVP8, nil
	default:
		return constants.MediaUnknown, constants.CodecUnknown, fmt.Errorf("invalid media: %s (use 'audio' or 'video')", s)
	}
}

func benchEncryptDecrypt(frameCount, frameSize int, mediaType constants.MediaType, codec constants.Codec) {
	fmt.Printf("Benchmarking Encrypt+Decrypt (%d frames, %d bytes each, %s)\n", frameCount, frameSize, mediaType)
	fmt.Println(strings.Repeat("─", 60))

	key := ratchet.MakeStaticSenderKey("bench-sender")
	keyRatchet := ratchet.NewStaticKeyRatchet(key)

	enc := e2ee.NewEncryptor()
	enc.SetKeyRatchet(keyRatchet)
	enc.AssignSsrcToCodec(1, codec)

	fc := clock.NewFake(time.Now())
	dec := e2ee.NewDecryptor(fc)
	dec.TransitionToKeyRatchet(keyRatchet, constants.DefaultTransitionDuration)

	plaintext := make([]byte, frameSize)
	for i := range plaintext {
		plaintext[i] = byte(i)
	}
	if mediaType == constants.MediaVideo {
		plaintext[0] = 0x00 // VP8 key-frame marker byte
	}

	encrypted := make([]byte, enc.GetMaxCiphertextByteSize(frameSize))
	decrypted := make([]byte, frameSize+64)

	var encryptDuration, decryptDuration time.Duration
	var encryptFailures, decryptFailures int

	startTime := time.Now()
	for i := 0; i < frameCount; i++ {
		encStart := time.Now()
		n, err := enc.Encrypt(mediaType, 1, plaintext, encrypted)
		encryptDuration += time.Since(encStart)
		if err != nil {
			encryptFailures++
			continue
		}

		decStart := time.Now()
		if _, err := dec.Decrypt(mediaType, encrypted[:n], decrypted); err != nil {
			decryptFailures++
		}
		decryptDuration += time.Since(decStart)

		if (i+1)%(frameCount/10+1) == 0 || i == frameCount-1 {
			fmt.Printf("Progress: %d/%d (%.0f%%)\r", i+1, frameCount, float64(i+1)/float64(frameCount)*100)
		}
	}
	fmt.Println()
	totalTime := time.Since(startTime)

	printBenchResults(frameCount, frameSize, encryptFailures, decryptFailures, totalTime, encryptDuration, decryptDuration)
}

func printBenchResults(frameCount, frameSize, encryptFailures, decryptFailures int, totalTime, encryptDuration, decryptDuration time.Duration) {
	fmt.Println("\nResults:")
	fmt.Printf("  Total frames: %d\n", frameCount)
	fmt.Printf("  Encrypt failures: %d\n", encryptFailures)
	fmt.Printf("  Decrypt failures: %d\n", decryptFailures)
	fmt.Printf("  Total time: %v\n", totalTime)
	fmt.Println()

	avgEncrypt := encryptDuration / time.Duration(frameCount)
	avgDecrypt := decryptDuration / time.Duration(frameCount)
	totalBytes := int64(frameCount) * int64(frameSize)
	mbps := float64(totalBytes) / totalTime.Seconds() / 1024 / 1024

	fmt.Println("Frame Transform Performance:")
	fmt.Printf("  Average encrypt: %v\n", avgEncrypt)
	fmt.Printf("  Average decrypt: %v\n", avgDecrypt)
	fmt.Printf("  Frames/sec: %.0f\n", float64(frameCount)/totalTime.Seconds())
	fmt.Printf("  Throughput: %.2f MB/s\n", mbps)
	fmt.Println()

	printBenchRating(avgEncrypt + avgDecrypt)
}

func printBenchRating(avgRoundTrip time.Duration) {
	if avgRoundTrip < 5*time.Microsecond {
		fmt.Println("✓ Performance: Excellent (< 5µs round trip)")
	} else if avgRoundTrip < 20*time.Microsecond {
		fmt.Println("✓ Performance: Good (< 20µs round trip)")
	} else if avgRoundTrip < 100*time.Microsecond {
		fmt.Println("⚠ Performance: Acceptable (< 100µs round trip)")
	} else {
		fmt.Println("⚠ Performance: Slow (> 100µs round trip)")
	}
}
