package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	lumen "github.com/lumenfn/lumen-go"
	"github.com/lumenfn/lumen-go/httptransport"
	"github.com/lumenfn/lumen-go/internal/log"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "invoke":
		os.Exit(runInvoke(args))
	case "pipeline":
		os.Exit(runPipeline(args))
	case "version":
		fmt.Printf("lumen version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`lumen - invoke serverless function workers from the command line

Usage:
  lumen invoke   -url URL [-config FILE] -method NAME [-params JSON]
  lumen pipeline -url URL [-config FILE] -chain "a,b,c" [-params JSON] [-get FIELD]
  lumen version

Examples:
  lumen invoke -url https://fn.example.com/invoke -method getUser -params '[7]'
  lumen pipeline -url https://fn.example.com/invoke -chain "getUser,loadProfile" -params '[7]' -get displayName
`)
}

// buildEngine assembles config, transport and engine from shared flags.
func buildEngine(configPath, baseURL, logLevel string) (*lumen.Engine, error) {
	log.Setup(logLevel)

	var cfg lumen.Config
	if configPath != "" {
		loaded, err := lumen.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("no target url: pass -url or set base_url in the config file")
	}

	transport, err := httptransport.New(cfg.BaseURL, httptransport.WithRetries(cfg.Retries))
	if err != nil {
		return nil, err
	}
	return lumen.New(transport, cfg)
}

func runInvoke(args []string) int {
	fs := flag.NewFlagSet("invoke", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	baseURL := fs.String("url", "", "Target address (overrides config base_url)")
	method := fs.String("method", "", "Method name to invoke")
	paramsJSON := fs.String("params", "[]", "Call parameters as a JSON array")
	logLevel := fs.String("log-level", "WARN", "Log level (DEBUG, INFO, WARN, ERROR)")
	showMetrics := fs.Bool("metrics", false, "Print engine metrics after the call")
	fs.Parse(args)

	if *method == "" {
		fmt.Fprintln(os.Stderr, "Error: -method is required")
		return 1
	}
	params, err := parseParams(*paramsJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	eng, err := buildEngine(*configPath, *baseURL, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer eng.Close()

	result, err := eng.Invoke(context.Background(), *method, params...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	printResult(result)

	if *showMetrics {
		printMetrics(eng)
	}
	return 0
}

func runPipeline(args []string) int {
	fs := flag.NewFlagSet("pipeline", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	baseURL := fs.String("url", "", "Target address (overrides config base_url)")
	chainSpec := fs.String("chain", "", "Comma-separated method names to chain")
	paramsJSON := fs.String("params", "[]", "Parameters for the first chained call, as a JSON array")
	getField := fs.String("get", "", "Field to read from the final result locally")
	logLevel := fs.String("log-level", "WARN", "Log level (DEBUG, INFO, WARN, ERROR)")
	showMetrics := fs.Bool("metrics", false, "Print engine metrics after the call")
	fs.Parse(args)

	methods := splitChain(*chainSpec)
	if len(methods) == 0 {
		fmt.Fprintln(os.Stderr, "Error: -chain is required")
		return 1
	}
	params, err := parseParams(*paramsJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	eng, err := buildEngine(*configPath, *baseURL, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer eng.Close()

	chain := eng.Pipeline().Call(methods[0], params...)
	for _, m := range methods[1:] {
		chain = chain.Call(m)
	}
	if *getField != "" {
		chain = chain.Get(*getField)
	}

	result, err := chain.Resolve(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	printResult(result)

	if *showMetrics {
		printMetrics(eng)
	}
	return 0
}

func parseParams(raw string) ([]any, error) {
	var params []any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("-params must be a JSON array: %w", err)
	}
	return params, nil
}

func splitChain(spec string) []string {
	var methods []string
	for _, part := range strings.Split(spec, ",") {
		if m := strings.TrimSpace(part); m != "" {
			methods = append(methods, m)
		}
	}
	return methods
}

func printResult(result any) {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", result)
		return
	}
	fmt.Println(string(out))
}

func printMetrics(eng *lumen.Engine) {
	m := eng.Metrics()
	fmt.Fprintf(os.Stderr, "requests=%d deduplicated=%d batched=%d avg=%s p95=%s sent=%dB received=%dB\n",
		m.TotalRequests, m.DeduplicatedRequests, m.BatchedRequests,
		m.AvgLatency, m.P95Latency, m.TotalBytesSent, m.TotalBytesReceived)
}
