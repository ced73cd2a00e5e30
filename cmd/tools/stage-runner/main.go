// cmd/tools/stage-runner/main.go
//
// stage-runner submits a single stage run to a workflow server and polls the
// status endpoint until the job reaches a terminal state.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const pollInterval = time.Second

// Attempt ceilings per stage. Scans are cheap aggregate reads; the analysis
// and debate stages call out to a reasoning provider and need more headroom.
var maxAttempts = map[string]int{
	"situation-scan":   30,
	"deep-analysis":    60,
	"solution-finding": 60,
}

type statusResponse struct {
	RequestID string          `json:"request_id"`
	StageType string          `json:"stage_type"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "Workflow server base URL")
	stage := flag.String("stage", "", "Stage type (situation-scan, deep-analysis, solution-finding)")
	input := flag.String("input", "{}", "Stage input as inline JSON, or @path to read from a file")
	timeout := flag.Duration("timeout", 10*time.Second, "Per-request HTTP timeout")
	flag.Parse()

	if *stage == "" {
		fmt.Println("Error: -stage is required.")
		flag.Usage()
		os.Exit(1)
	}
	attempts, ok := maxAttempts[*stage]
	if !ok {
		fmt.Printf("Error: unknown stage %q. Valid stages: situation-scan, deep-analysis, solution-finding\n", *stage)
		os.Exit(1)
	}

	payload, err := readInput(*input)
	if err != nil {
		fmt.Printf("Error reading input: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: *timeout}
	base := strings.TrimRight(*server, "/")

	requestID, err := submit(client, base, *stage, payload)
	if err != nil {
		fmt.Printf("Error submitting job: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Submitted %s job: %s\n", *stage, requestID)

	final, err := poll(client, base, *stage, requestID, attempts)
	if err != nil {
		fmt.Printf("Error polling job: %v\n", err)
		os.Exit(1)
	}

	switch final.Status {
	case "completed":
		out, _ := json.MarshalIndent(json.RawMessage(final.Result), "", "  ")
		fmt.Printf("Job completed:\n%s\n", out)
	case "failed":
		fmt.Printf("Job failed: %s\n", final.Error)
		os.Exit(1)
	default:
		fmt.Printf("Job still %s after %d attempts, giving up. Poll manually:\n", final.Status, attempts)
		fmt.Printf("  curl %s/api/v1/workflows/%s/%s/status\n", base, *stage, requestID)
		os.Exit(1)
	}
}

func readInput(input string) (json.RawMessage, error) {
	raw := []byte(input)
	if strings.HasPrefix(input, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(input, "@"))
		if err != nil {
			return nil, err
		}
		raw = data
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("input is not valid JSON")
	}
	return raw, nil
}

func submit(client *http.Client, base, stage string, payload json.RawMessage) (string, error) {
	url := fmt.Sprintf("%s/api/v1/workflows/%s/run", base, stage)
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var accepted struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &accepted); err != nil {
		return "", fmt.Errorf("unexpected accept payload: %w", err)
	}
	return accepted.RequestID, nil
}

func poll(client *http.Client, base, stage, requestID string, attempts int) (*statusResponse, error) {
	url := fmt.Sprintf("%s/api/v1/workflows/%s/%s/status", base, stage, requestID)

	var last *statusResponse
	for i := 1; i <= attempts; i++ {
		time.Sleep(pollInterval)

		status, err := fetchStatus(client, url)
		if err != nil {
			return nil, err
		}
		last = status

		if status.Status == "completed" || status.Status == "failed" {
			return status, nil
		}
		fmt.Printf("  [%d/%d] %s\n", i, attempts, status.Status)
	}
	return last, nil
}

func fetchStatus(client *http.Client, url string) (*statusResponse, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("unexpected status payload: %w", err)
	}
	return &status, nil
}
