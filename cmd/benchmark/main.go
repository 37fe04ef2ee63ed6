// Benchmark tool for testing Kestrel against labeled credit application data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/applications.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled application data (with approval outcomes)
//   2. Sends each application to Kestrel for a decision
//   3. Compares Kestrel's verdict (Sim/Não) with the recorded outcome
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// The CSV needs a header row with the columns: income, age,
// requested_amount, collateral_value, collateral_liquidity, approved.
// The approved column accepts 1/0, true/false, or sim/nao.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledApplication represents a row from the benchmark dataset
type LabeledApplication struct {
	Income              float64
	Age                 int
	RequestedAmount     float64
	CollateralValue     float64
	CollateralLiquidity string
	Approved            bool
}

// PredictRequest is the Kestrel API request format
type PredictRequest struct {
	Income              float64 `json:"income"`
	Age                 int     `json:"age"`
	RequestedAmount     float64 `json:"requestedAmount"`
	CollateralValue     float64 `json:"collateralValue"`
	CollateralLiquidity string  `json:"collateralLiquidity"`
}

// PredictResponse is the Kestrel API response format
type PredictResponse struct {
	Approved    string  `json:"approved"` // "Sim" or "Não"
	Probability float64 `json:"approvalProbability"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Approved and model agreed
	FalsePositives int64 // Denied in the data, model approved
	TrueNegatives  int64 // Denied and model agreed
	FalseNegatives int64 // Approved in the data, model denied

	TotalProcessed int64
	TotalApproved  int64
	TotalDenied    int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled applications CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	limit := flag.Int("limit", 10000, "Maximum applications to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each application result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/applications.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         KESTREL BENCHMARK - Credit Decision Replay            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read labeled data
	fmt.Printf("\nReading labeled applications from %s...\n", *csvPath)
	applications, err := readApplicationsCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d applications\n", len(applications))

	// Count approved vs denied in the labels
	approvedCount := 0
	for _, app := range applications {
		if app.Approved {
			approvedCount++
		}
	}
	fmt.Printf("  - Approved: %d (%.2f%%)\n", approvedCount, 100*float64(approvedCount)/float64(len(applications)))
	fmt.Printf("  - Denied:   %d (%.2f%%)\n", len(applications)-approvedCount, 100*float64(len(applications)-approvedCount)/float64(len(applications)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(applications, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func parseLabel(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "sim", "yes", "approved":
		return true
	}
	return false
}

func readApplicationsCSV(path string, limit int) ([]LabeledApplication, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"income", "age", "requested_amount", "collateral_value", "collateral_liquidity", "approved"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var applications []LabeledApplication

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		income, _ := strconv.ParseFloat(record[colIndex["income"]], 64)
		age, _ := strconv.Atoi(record[colIndex["age"]])
		requested, _ := strconv.ParseFloat(record[colIndex["requested_amount"]], 64)
		collateral, _ := strconv.ParseFloat(record[colIndex["collateral_value"]], 64)

		app := LabeledApplication{
			Income:              income,
			Age:                 age,
			RequestedAmount:     requested,
			CollateralValue:     collateral,
			CollateralLiquidity: strings.ToLower(strings.TrimSpace(record[colIndex["collateral_liquidity"]])),
			Approved:            parseLabel(record[colIndex["approved"]]),
		}

		applications = append(applications, app)

		if limit > 0 && len(applications) >= limit {
			break
		}
	}

	return applications, nil
}

func runBenchmark(applications []LabeledApplication, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabeledApplication, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for app := range work {
				start := time.Now()
				result, err := predictApplication(client, baseURL, app)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: income=%.0f age=%d -> %v\n", app.Income, app.Age, err)
					}
					continue
				}

				// Track actual labels
				if app.Approved {
					atomic.AddInt64(&metrics.TotalApproved, 1)
				} else {
					atomic.AddInt64(&metrics.TotalDenied, 1)
				}

				// Calculate confusion matrix
				predicted := result.Approved == "Sim"
				actual := app.Approved

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					fmt.Printf("%s income: %10.2f | age: %3d | amount: %12.2f | label: %-5v | kestrel: %-4s (%.2f)\n",
						status,
						app.Income,
						app.Age,
						app.RequestedAmount,
						app.Approved,
						result.Approved,
						result.Probability,
					)
				}
			}
		}()
	}

	// Send work
	for _, app := range applications {
		work <- app
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func predictApplication(client *http.Client, baseURL string, app LabeledApplication) (*PredictResponse, error) {
	req := PredictRequest{
		Income:              app.Income,
		Age:                 app.Age,
		RequestedAmount:     app.RequestedAmount,
		CollateralValue:     app.CollateralValue,
		CollateralLiquidity: app.CollateralLiquidity,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Approved:   %d\n", m.TotalApproved)
	fmt.Printf("   Total Denied:     %d\n", m.TotalDenied)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    Sim         Não")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  A  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           D  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 AGREEMENT METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of approvals, how many the data also approved)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of approved labels, how many we approved)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall agreement with the labels)\n", accuracy)

	// Disagreement analysis
	fmt.Printf("\n🔍 DISAGREEMENT ANALYSIS\n")
	if m.TotalApproved > 0 {
		missRate := float64(m.FalseNegatives) / float64(m.TotalApproved) * 100
		fmt.Printf("   Good applicants denied: %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalApproved, missRate)
	}
	if m.TotalDenied > 0 {
		leakRate := float64(m.FalsePositives) / float64(m.TotalDenied) * 100
		fmt.Printf("   Bad applicants approved: %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalDenied, leakRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", tps)
	}

	fmt.Println()
}
