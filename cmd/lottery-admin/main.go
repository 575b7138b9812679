// Command lottery-admin is an operator CLI for the lottery decision core's
// admin RPC surface: campaign budgets, pricing version lifecycle, prize and
// quota-rule upserts. It talks to a running lotteryd over HTTP the same way
// slctl talks to the service layer — a thin bearer-authenticated JSON client
// with one flag.FlagSet per subcommand — but maps every failure onto the
// exit-code contract an automation pipeline can branch on (spec §6): 0
// success, 1 validation/config error, 2 runtime error, 3 timeout.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	exitOK         = 0
	exitValidation = 1
	exitRuntime    = 2
	exitTimeout    = 3
)

func main() {
	code := run(context.Background(), os.Args[1:])
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	defaultAddr := getenv("LOTTERY_ADMIN_ADDR", "http://localhost:8080")
	defaultToken := os.Getenv("LOTTERY_ADMIN_TOKEN")

	root := flag.NewFlagSet("lottery-admin", flag.ContinueOnError)
	root.SetOutput(io.Discard)
	addrFlag := root.String("addr", defaultAddr, "lotteryd base URL (env LOTTERY_ADMIN_ADDR)")
	tokenFlag := root.String("token", defaultToken, "admin bearer token (env LOTTERY_ADMIN_TOKEN)")
	timeoutFlag := root.Duration("timeout", 10*time.Second, "request timeout")
	if err := root.Parse(args); err != nil {
		printRootUsage()
		return exitValidation
	}

	remaining := root.Args()
	if len(remaining) == 0 {
		printRootUsage()
		return exitValidation
	}

	reqCtx, cancel := context.WithTimeout(ctx, *timeoutFlag)
	defer cancel()

	client := &apiClient{
		baseURL: strings.TrimRight(*addrFlag, "/"),
		token:   strings.TrimSpace(*tokenFlag),
		http:    &http.Client{Timeout: *timeoutFlag},
	}

	var err error
	switch remaining[0] {
	case "campaign":
		err = handleCampaign(reqCtx, client, remaining[1:])
	case "pricing":
		err = handlePricing(reqCtx, client, remaining[1:])
	case "prizes":
		err = handlePrizes(reqCtx, client, remaining[1:])
	case "quota-rules":
		err = handleQuotaRules(reqCtx, client, remaining[1:])
	case "health":
		err = handleHealth(reqCtx, client)
	case "help", "-h", "--help":
		printRootUsage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", remaining[0])
		printRootUsage()
		return exitValidation
	}

	return classify(err)
}

func classify(err error) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if errors.Is(err, context.DeadlineExceeded) {
		return exitTimeout
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		if apiErr.status == http.StatusRequestTimeout || apiErr.status == http.StatusGatewayTimeout {
			return exitTimeout
		}
		if apiErr.status >= 400 && apiErr.status < 500 {
			return exitValidation
		}
	}
	var usageErr usageError
	if errors.As(err, &usageErr) {
		return exitValidation
	}
	return exitRuntime
}

type usageError string

func (e usageError) Error() string { return string(e) }

func printRootUsage() {
	fmt.Println(`lottery-admin: operator CLI for the lottery decision core

Usage:
  lottery-admin [global flags] <command> [subcommand] [flags]

Global Flags:
  --addr     lotteryd base URL (env LOTTERY_ADMIN_ADDR, default http://localhost:8080)
  --token    admin bearer token (env LOTTERY_ADMIN_TOKEN)
  --timeout  request timeout (default 10s)

Commands:
  campaign update-budget --campaign <id> --budget <points>
  pricing create-version --campaign <id> --config <file.json> --author <name>
  pricing schedule --campaign <id> --version <n> --effective-at <RFC3339>
  pricing activate --campaign <id> --version <n> --author <name>
  pricing rollback --campaign <id> --version <n> --author <name>
  prizes upsert --file <prize.json>
  quota-rules upsert --file <rule.json>
  health`)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// apiError carries the HTTP status back up so classify can distinguish a
// rejected request (validation) from a failed one (runtime).
type apiError struct {
	status int
	code   string
	detail string
}

func (e *apiError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.code, e.detail, e.status)
	}
	return fmt.Sprintf("%s (status %d)", e.detail, e.status)
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *apiClient) request(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 300 {
		var parsed struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &parsed)
		detail := parsed.Message
		if detail == "" {
			detail = strings.TrimSpace(string(data))
		}
		return nil, &apiError{status: resp.StatusCode, code: parsed.Code, detail: detail}
	}
	return data, nil
}

func prettyPrint(data []byte) {
	if len(data) == 0 {
		fmt.Println("(empty)")
		return
	}
	var dst bytes.Buffer
	if err := json.Indent(&dst, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(dst.String())
}

// ---------------------------------------------------------------------
// campaign

func handleCampaign(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		return usageError("campaign requires a subcommand: update-budget")
	}
	switch args[0] {
	case "update-budget":
		fs := flag.NewFlagSet("campaign update-budget", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var campaignID string
		var budget int64
		fs.StringVar(&campaignID, "campaign", "", "Campaign ID (required)")
		fs.Int64Var(&budget, "budget", 0, "Remaining budget in points (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err.Error())
		}
		if campaignID == "" {
			return usageError("campaign is required")
		}
		data, err := client.request(ctx, http.MethodPost, "/v1/admin/campaigns/"+campaignID+"/budget",
			map[string]any{"remaining_budget": budget})
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil
	default:
		return usageError(fmt.Sprintf("unknown campaign subcommand %q", args[0]))
	}
}

// ---------------------------------------------------------------------
// pricing

func handlePricing(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		return usageError("pricing requires a subcommand: create-version, schedule, activate, rollback")
	}
	switch args[0] {
	case "create-version":
		fs := flag.NewFlagSet("pricing create-version", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var campaignID, configPath, author string
		fs.StringVar(&campaignID, "campaign", "", "Campaign ID (required)")
		fs.StringVar(&configPath, "config", "", "Path to pricing config JSON file (required)")
		fs.StringVar(&author, "author", "", "Audit author (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err.Error())
		}
		if campaignID == "" || configPath == "" || author == "" {
			return usageError("campaign, config, and author are required")
		}
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return usageError(fmt.Sprintf("read config file: %v", err))
		}
		data, err := client.request(ctx, http.MethodPost, "/v1/admin/campaigns/"+campaignID+"/pricing/versions",
			map[string]any{"raw_config": json.RawMessage(raw), "author": author})
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil
	case "schedule":
		fs := flag.NewFlagSet("pricing schedule", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var campaignID, effectiveAt string
		var version int64
		fs.StringVar(&campaignID, "campaign", "", "Campaign ID (required)")
		fs.Int64Var(&version, "version", 0, "Pricing version (required)")
		fs.StringVar(&effectiveAt, "effective-at", "", "Effective time, RFC3339 (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err.Error())
		}
		if campaignID == "" || version == 0 || effectiveAt == "" {
			return usageError("campaign, version, and effective-at are required")
		}
		if _, err := time.Parse(time.RFC3339, effectiveAt); err != nil {
			return usageError(fmt.Sprintf("effective-at must be RFC3339: %v", err))
		}
		data, err := client.request(ctx, http.MethodPost, "/v1/admin/campaigns/"+campaignID+"/pricing/schedule",
			map[string]any{"version": version, "effective_at": effectiveAt})
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil
	case "activate":
		fs := flag.NewFlagSet("pricing activate", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var campaignID, author string
		var version int64
		fs.StringVar(&campaignID, "campaign", "", "Campaign ID (required)")
		fs.Int64Var(&version, "version", 0, "Pricing version (required)")
		fs.StringVar(&author, "author", "", "Audit author (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err.Error())
		}
		if campaignID == "" || version == 0 || author == "" {
			return usageError("campaign, version, and author are required")
		}
		data, err := client.request(ctx, http.MethodPost, "/v1/admin/campaigns/"+campaignID+"/pricing/activate",
			map[string]any{"version": version, "author": author})
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil
	case "rollback":
		fs := flag.NewFlagSet("pricing rollback", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var campaignID, author string
		var version int64
		fs.StringVar(&campaignID, "campaign", "", "Campaign ID (required)")
		fs.Int64Var(&version, "version", 0, "Pricing version to roll back to (required)")
		fs.StringVar(&author, "author", "", "Audit author (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err.Error())
		}
		if campaignID == "" || version == 0 || author == "" {
			return usageError("campaign, version, and author are required")
		}
		data, err := client.request(ctx, http.MethodPost, "/v1/admin/campaigns/"+campaignID+"/pricing/rollback",
			map[string]any{"version": version, "author": author})
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil
	default:
		return usageError(fmt.Sprintf("unknown pricing subcommand %q", args[0]))
	}
}

// ---------------------------------------------------------------------
// prizes / quota-rules

func handlePrizes(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 || args[0] != "upsert" {
		return usageError("prizes requires a subcommand: upsert --file <prize.json>")
	}
	fs := flag.NewFlagSet("prizes upsert", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var filePath string
	fs.StringVar(&filePath, "file", "", "Path to prize JSON file (required)")
	if err := fs.Parse(args[1:]); err != nil {
		return usageError(err.Error())
	}
	if filePath == "" {
		return usageError("file is required")
	}
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return usageError(fmt.Sprintf("read prize file: %v", err))
	}
	var payload json.RawMessage = raw
	data, err := client.request(ctx, http.MethodPost, "/v1/admin/prizes", payload)
	if err != nil {
		return err
	}
	prettyPrint(data)
	return nil
}

func handleQuotaRules(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 || args[0] != "upsert" {
		return usageError("quota-rules requires a subcommand: upsert --file <rule.json>")
	}
	fs := flag.NewFlagSet("quota-rules upsert", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var filePath string
	fs.StringVar(&filePath, "file", "", "Path to quota rule JSON file (required)")
	if err := fs.Parse(args[1:]); err != nil {
		return usageError(err.Error())
	}
	if filePath == "" {
		return usageError("file is required")
	}
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return usageError(fmt.Sprintf("read quota rule file: %v", err))
	}
	var payload json.RawMessage = raw
	data, err := client.request(ctx, http.MethodPost, "/v1/admin/quota-rules", payload)
	if err != nil {
		return err
	}
	prettyPrint(data)
	return nil
}

// ---------------------------------------------------------------------
// health

func handleHealth(ctx context.Context, client *apiClient) error {
	data, err := client.request(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	prettyPrint(data)
	return nil
}
