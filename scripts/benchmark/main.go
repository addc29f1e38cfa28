package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/neardup/models"
	"github.com/use-agent/neardup/simhash"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "neardup API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of runs per scenario for averaging")
	seed   = flag.Uint64("seed", 1, "Seed for the synthetic fingerprints")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Scenarios cover growing inputs with near-duplicate clusters.
var scenarios = []struct {
	Label       string
	Groups      int
	PerGroup    int
	MaxFlips    int
	MaxDistance int
}{
	{"Tiny", 50, 4, 3, 3},
	{"Small", 500, 4, 3, 3},
	{"Medium", 2500, 4, 4, 4},
	{"Large", 10000, 5, 3, 3},
	{"Loose", 1000, 5, 8, 8},
}

// --- Benchmark result types ---

type runResult struct {
	Run        int     `json:"run"`
	TotalMs    int64   `json:"total_ms"`
	SearchMs   int64   `json:"search_ms"`
	RoundTrip  int64   `json:"round_trip_ms"`
	Pairs      int     `json:"pairs"`
	Recall     float64 `json:"recall"`
	FalsePairs int     `json:"false_pairs"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
}

type scenarioAverages struct {
	TotalMs   float64 `json:"total_ms"`
	SearchMs  float64 `json:"search_ms"`
	RoundTrip float64 `json:"round_trip_ms"`
	Recall    float64 `json:"recall"`
}

type scenarioResult struct {
	Label        string            `json:"label"`
	Fingerprints int               `json:"fingerprints"`
	MaxDistance  int               `json:"max_distance"`
	TruePairs    int               `json:"true_pairs"`
	TruthMs      int64             `json:"truth_ms"`
	Runs         []runResult       `json:"runs"`
	Averages     *scenarioAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp string           `json:"timestamp"`
	APIURL    string           `json:"api_url"`
	RunsPer   int              `json:"runs_per_scenario"`
	Seed      uint64           `json:"seed"`
	Results   []scenarioResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== neardup Benchmark Suite ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs:      %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	// Quick connectivity check.
	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure neardup is running (e.g. go run ./cmd/neardup)\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		APIURL:    *apiURL,
		RunsPer:   *runs,
		Seed:      *seed,
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	for _, s := range scenarios {
		fps := clustered(rng, s.Groups, s.PerGroup, s.MaxFlips)
		fmt.Printf("Benchmarking [%s] %d fingerprints, max distance %d ...\n", s.Label, len(fps), s.MaxDistance)

		truthStart := time.Now()
		truth, err := simhash.BruteForcePairs(fps, s.MaxDistance)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		sr := scenarioResult{
			Label:        s.Label,
			Fingerprints: len(fps),
			MaxDistance:  s.MaxDistance,
			TruePairs:    len(truth),
			TruthMs:      time.Since(truthStart).Milliseconds(),
		}
		truthSet := make(map[simhash.Pair]struct{}, len(truth))
		for _, p := range truth {
			truthSet[p] = struct{}{}
		}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkSimilar(fps, s.MaxDistance, truthSet, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d pairs  recall %.1f%%\n", rr.RoundTrip, rr.Pairs, rr.Recall*100)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			sr.Runs = append(sr.Runs, rr)
		}

		sr.Averages = computeAverages(sr.Runs)
		report.Results = append(report.Results, sr)
		fmt.Println()
	}

	// Print summary table.
	printTable(report.Results)

	// Write JSON report.
	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

// clustered returns groups of fingerprints that differ from their group's
// seed in at most maxFlips random bits.
func clustered(rng *rand.Rand, groups, perGroup, maxFlips int) []uint64 {
	fps := make([]uint64, 0, groups*perGroup)
	for range groups {
		base := rng.Uint64()
		for range perGroup {
			fp := base
			for range rng.IntN(maxFlips + 1) {
				fp ^= 1 << rng.IntN(64)
			}
			fps = append(fps, fp)
		}
	}
	rng.Shuffle(len(fps), func(i, j int) { fps[i], fps[j] = fps[j], fps[i] })
	return fps
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkSimilar(fps []uint64, maxDistance int, truth map[simhash.Pair]struct{}, run int) runResult {
	rr := runResult{Run: run}

	hashes := make([]models.Hash, len(fps))
	for i, fp := range fps {
		hashes[i] = models.Hash(fp)
	}
	bodyBytes, err := json.Marshal(models.SimilarRequest{Fingerprints: hashes, MaxDistance: &maxDistance})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/similar", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var sr models.SimilarResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}
	rr.RoundTrip = time.Since(start).Milliseconds()

	rr.Success = sr.Success
	rr.TotalMs = sr.Timing.TotalMs
	rr.SearchMs = sr.Timing.SearchMs
	rr.Pairs = len(sr.Pairs)
	if sr.Error != nil {
		rr.Error = sr.Error.Message
	}

	found := 0
	for _, p := range sr.Pairs {
		if _, ok := truth[p]; ok {
			found++
		} else {
			rr.FalsePairs++
		}
	}
	rr.Recall = 1
	if len(truth) > 0 {
		rr.Recall = float64(found) / float64(len(truth))
	}
	return rr
}

func computeAverages(runs []runResult) *scenarioAverages {
	var successCount int
	var avg scenarioAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.TotalMs += float64(r.TotalMs)
		avg.SearchMs += float64(r.SearchMs)
		avg.RoundTrip += float64(r.RoundTrip)
		avg.Recall += r.Recall
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.TotalMs /= n
	avg.SearchMs /= n
	avg.RoundTrip /= n
	avg.Recall /= n
	return &avg
}

func printTable(results []scenarioResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Scenario\tFingerprints\tTrue Pairs\tSearch\tRound Trip\tBrute Force\tRecall\n")
	fmt.Fprintf(w, "────────\t────────────\t──────────\t──────\t──────────\t───────────\t──────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\t%s\t%s\tFAILED\t-\t-\t-\n", r.Label, formatInt(r.Fingerprints), formatInt(r.TruePairs))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%dms\t%dms\t%.1f%%\n",
			r.Label,
			formatInt(r.Fingerprints),
			formatInt(r.TruePairs),
			int64(r.Averages.SearchMs),
			int64(r.Averages.RoundTrip),
			r.TruthMs,
			r.Averages.Recall*100,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func formatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
