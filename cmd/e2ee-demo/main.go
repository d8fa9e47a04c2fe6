package main

import (
	"flag"
	"fmt"
	"os"

	pkgversion "github.com/pzverkov/e2ee-media/pkg/version"
)

// Build-time variables (set via -ldflags)
var (
	version   = ""        // Set via -ldflags "-X main.version=x.y.z"
	buildTime = "unknown" // Set via -ldflags "-X main.buildTime=..."
	gitCommit = "unknown" // Set via -ldflags "-X main.gitCommit=..."
)

func getVersion() string {
	if version != "" {
		return version
	}
	return pkgversion.String()
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "demo":
		demoCommand()
	case "bench":
		benchCommand()
	case "example":
		exampleCommand()
	case "version":
		fmt.Printf("e2ee-demo version %s\n", getVersion())
		if buildTime != "unknown" {
			fmt.Printf("Built: %s\n", buildTime)
		}
		if gitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", gitCommit)
		}
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`e2ee-demo - DAVE-style Media Frame E2EE Demo & Benchmark Tool

USAGE:
    e2ee-demo <command> [options]

COMMANDS:
    demo      Encrypt/decrypt a frame on every supported codec and print the result
    bench     Run encrypt/decrypt throughput benchmarks
    example   Show example usage with explanations
    version   Print version information
    help      Show this help message

Run 'e2ee-demo <command> --help' for more information on a command.

EXAMPLES:
    # Round-trip every codec once, verbosely
    e2ee-demo demo --verbose

    # Round-trip only audio frames, with an observability server
    e2ee-demo demo --media audio --obs-addr :9090

    # Run an encrypt/decrypt throughput benchmark
    e2ee-demo bench --frames 100000 --size 1200

    # Show interactive examples
    e2ee-demo example

PROJECT:
    e2ee-media - client-side media frame transform for group E2EE

    Per-frame AEAD: AES-128-GCM with a truncated authentication tag,
    keys derived from a per-sender hash ratchet, nonces carried in an
    appended frame trailer alongside the key generation.`)
}

func demoCommand() {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	media := fs.String("media", "all", "Media to round-trip: audio, video, or all")
	verbose := fs.Bool("verbose", false, "Verbose output")
	obsAddr := fs.String("obs-addr", "", "Observability server address. Empty disables")
	logLevel := fs.String("log-level", "warn", "Log level: debug, info, warn, error, silent")
	logFormat := fs.String("log-format", "text", "Log format: text or json")
	tracing := fs.String("tracing", "none", "Tracing mode: none, simple, otel (requires -tags otel)")

	fs.Usage = func() {
		fmt.Println(`USAGE: e2ee-demo demo [options]

Round-trip a synthetic frame through the Encryptor and Decryptor for
each supported codec, printing the plaintext and encrypted frame sizes.

OPTIONS:`)
		fs.PrintDefaults()
		fmt.Println(`
EXAMPLES:
    # Round-trip every codec
    e2ee-demo demo --verbose

    # Only audio, with metrics and health endpoints served locally
    e2ee-demo demo --media audio --obs-addr :9090`)
	}

	_ = fs.Parse(os.Args[2:])

	runDemo(*media, *verbose, *obsAddr, *logLevel, *logFormat, *tracing)
}

func benchCommand() {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	frames := fs.Int("frames", 100000, "Number of frames to encrypt+decrypt")
	size := fs.Int("size", 1200, "Plaintext frame size in bytes")
	media := fs.String("media", "video", "Media type to benchmark: audio or video")

	fs.Usage = func() {
		fmt.Println(`USAGE: e2ee-demo bench [options]

Run an encrypt+decrypt throughput benchmark over synthetic frames.

OPTIONS:`)
		fs.PrintDefaults()
		fmt.Println(`
EXAMPLES:
    # Benchmark 100k 1200-byte video frames
    e2ee-demo bench --frames 100000 --size 1200

    # Benchmark audio frames
    e2ee-demo bench --media audio --size 160`)
	}

	_ = fs.Parse(os.Args[2:])

	runBench(*frames, *size, *media)
}

func exampleCommand() {
	if len(os.Args) > 2 && (os.Args[2] == "--help" || os.Args[2] == "-h") {
		fmt.Println(`USAGE: e2ee-demo example

Display interactive examples with code snippets showing how to use the library.

This command shows:
  - Basic Encryptor/Decryptor setup
  - Ratchet transitions
  - Passthrough mode
  - Observability wiring
  - Error handling
  - Security best practices`)
		return
	}

	showExamples()
}
