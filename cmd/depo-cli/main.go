package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hearsaylabs/depogateway/internal/scoring"
	"github.com/hearsaylabs/depogateway/internal/transcript"
	"github.com/hearsaylabs/depogateway/internal/webhook"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "sign":
		return handleSign(args[2:], stdout, stderr)
	case "send":
		return handleSend(args[2:], stdout, stderr)
	case "score":
		return handleScore(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

// handleSign computes the signature header for a payload file, for replaying
// captured webhook deliveries against a local gateway.
func handleSign(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(stderr)
	secret := fs.String("secret", os.Getenv("DEPO_WEBHOOK_SECRET"), "webhook shared secret")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "sign requires <payload_file>")
		fs.Usage()
		return 2
	}
	if *secret == "" {
		fmt.Fprintln(stderr, "sign requires --secret or DEPO_WEBHOOK_SECRET")
		return 2
	}

	body, err := readPayload(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	fmt.Fprintln(stdout, webhook.Sign(*secret, body, time.Now()))
	return 0
}

func handleSend(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("DEPO_ADDR", defaultAddr), "gateway address")
	secret := fs.String("secret", os.Getenv("DEPO_WEBHOOK_SECRET"), "webhook shared secret")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "send requires <payload_file>")
		fs.Usage()
		return 2
	}
	if *secret == "" {
		fmt.Fprintln(stderr, "send requires --secret or DEPO_WEBHOOK_SECRET")
		return 2
	}

	body, err := readPayload(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*addr, "/")+"/v1/webhooks/convai", strings.NewReader(string(body)))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Convai-Signature", webhook.Sign(*secret, body, time.Now()))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	_, _ = stdout.Write(respBody)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "send failed: status %d\n", resp.StatusCode)
		return 1
	}
	return 0
}

// handleScore runs the LLM evaluation directly against a transcript file,
// bypassing the webhook flow. Useful for prompt tuning.
func handleScore(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(stderr)
	apiKey := fs.String("key", envOrDefault("DEPO_OPENAI_API_KEY", os.Getenv("OPENAI_API_KEY")), "LLM API key")
	model := fs.String("model", envOrDefault("DEPO_OPENAI_MODEL", scoring.DefaultModel), "model name")
	instructionsPath := fs.String("instructions", "", "path to a custom scoring prompt (optional)")
	jsonOut := fs.Bool("json", false, "print the full result as JSON")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "score requires <transcript_file>")
		fs.Usage()
		return 2
	}
	if *apiKey == "" {
		fmt.Fprintln(stderr, "score requires --key or DEPO_OPENAI_API_KEY")
		return 2
	}

	body, err := readPayload(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	turns, err := parseTurns(body)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	instructions := ""
	if *instructionsPath != "" {
		data, err := os.ReadFile(*instructionsPath)
		if err != nil {
			fmt.Fprintln(stderr, "read instructions:", err)
			return 1
		}
		instructions = string(data)
	}

	client, err := scoring.NewClient(*apiKey, *model, scoring.DefaultTimeout, slog.New(slog.NewTextHandler(stderr, nil)))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	result, err := client.Score(context.Background(), turns, instructions)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	if *jsonOut {
		out, _ := json.MarshalIndent(result, "", "  ")
		_, _ = stdout.Write(append(out, '\n'))
		return 0
	}

	fmt.Fprintf(stdout, "score=%d turn_scores=%d\n", result.Score, len(result.TurnScores))
	if result.ScoreReason != "" {
		fmt.Fprintf(stdout, "reason=%s\n", result.ScoreReason)
	}
	fmt.Fprintln(stdout, result.FullAnalysis)
	return 0
}

// parseTurns accepts either a bare turn array or a full webhook payload.
func parseTurns(body []byte) ([]transcript.Turn, error) {
	var turns []transcript.Turn
	if err := json.Unmarshal(body, &turns); err == nil {
		return turns, nil
	}

	event, err := webhook.ParseEvent(body)
	if err != nil {
		return nil, fmt.Errorf("input is neither a turn array nor a webhook payload: %w", err)
	}
	return event.Data.Transcript, nil
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Depo Gateway CLI

Usage:
  depo sign <payload_file> [--secret SECRET]
  depo send <payload_file> [--addr URL] [--secret SECRET]
  depo score <transcript_file> [--key KEY] [--model MODEL] [--instructions PATH] [--json]
`)
}
