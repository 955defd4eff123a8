// Command shadow_compare replays read-only requests against the legacy
// admission system and the intake API side by side and reports response
// diffs. Used during cutover to verify the new service before switching
// traffic.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"reflect"
	"strings"
	"time"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

// defaultTargets covers the read surface of the intake API. Mutating
// endpoints are excluded; replaying those against both systems would
// double-write.
var defaultTargets = []target{
	{Method: http.MethodGet, Path: "/api/v1/admissions", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/admissions?stage=INTERVIEW", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/students", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/catalog/departments", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/catalog/classes", Critical: false},
	{Method: http.MethodGet, Path: "/api/v1/catalog/sections", Critical: false},
	{Method: http.MethodGet, Path: "/api/v1/catalog/halaqahs", Critical: false},
	{Method: http.MethodGet, Path: "/health", Critical: false},
}

// volatileFields differ between systems by construction and are stripped
// before comparing bodies.
var volatileFields = map[string]bool{
	"request_id": true,
	"created_at": true,
	"updated_at": true,
	"timestamp":  true,
}

type result struct {
	Target       target
	IntakeStatus int
	LegacyStatus int
	StatusMatch  bool
	BodyMatch    bool
	IntakeTook   time.Duration
	LegacyTook   time.Duration
	Err          error
}

func main() {
	var (
		intakeBase  string
		legacyBase  string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&intakeBase, "intake-base", "http://localhost:8080", "intake API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:3000", "legacy admission system base URL")
	flag.StringVar(&targetsPath, "targets", "", "optional JSON targets file; defaults to the built-in read surface")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets := defaultTargets
	if targetsPath != "" {
		loaded, err := loadTargets(targetsPath)
		if err != nil {
			log.Fatalf("failed to load targets: %v", err)
		}
		targets = loaded
	}

	client := &http.Client{Timeout: timeout}

	var breaking, optional int
	results := make([]result, 0, len(targets))
	for _, tgt := range targets {
		res := compare(client, intakeBase, legacyBase, tgt)
		if res.Err != nil || !res.StatusMatch || !res.BodyMatch {
			if tgt.Critical {
				breaking++
			} else {
				optional++
			}
		}
		results = append(results, res)
	}

	printReport(results)
	fmt.Printf("Breaking diffs: %d, optional diffs: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg struct {
		Targets []target `json:"targets"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}

	return cfg.Targets, nil
}

func compare(client *http.Client, intakeBase, legacyBase string, tgt target) result {
	res := result{Target: tgt}

	intakeStatus, intakeBody, intakeTook, err := fetch(client, intakeBase, tgt)
	if err != nil {
		res.Err = fmt.Errorf("intake request failed: %w", err)
		return res
	}
	legacyStatus, legacyBody, legacyTook, err := fetch(client, legacyBase, tgt)
	if err != nil {
		res.Err = fmt.Errorf("legacy request failed: %w", err)
		return res
	}

	res.IntakeStatus = intakeStatus
	res.LegacyStatus = legacyStatus
	res.IntakeTook = intakeTook
	res.LegacyTook = legacyTook
	res.StatusMatch = intakeStatus == legacyStatus
	res.BodyMatch = bodiesEqual(intakeBody, legacyBody)

	return res
}

func fetch(client *http.Client, base string, tgt target) (int, []byte, time.Duration, error) {
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		return 0, nil, 0, err
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, err
	}

	return resp.StatusCode, body, time.Since(start), nil
}

func bodiesEqual(a, b []byte) bool {
	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return strings.TrimSpace(string(a)) == strings.TrimSpace(string(b))
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	normalize(&aj)
	normalize(&bj)
	return reflect.DeepEqual(aj, bj)
}

func normalize(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k := range val {
			if volatileFields[k] {
				delete(val, k)
			}
		}
		for k, v2 := range val {
			normalize(&v2)
			val[k] = v2
		}
	case []interface{}:
		for i, v2 := range val {
			normalize(&v2)
			val[i] = v2
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func printReport(results []result) {
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	for _, res := range results {
		status := "OK"
		if res.Err != nil {
			status = "ERROR"
		} else if !res.StatusMatch || !res.BodyMatch {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s %s\n", status, res.Target.Method, res.Target.Path)
		if res.Err != nil {
			fmt.Printf("  Error: %v\n", res.Err)
			continue
		}
		fmt.Printf("  Intake: %d (%s) | Legacy: %d (%s)\n", res.IntakeStatus, res.IntakeTook, res.LegacyStatus, res.LegacyTook)
		fmt.Printf("  Status match: %t | Body match: %t | Critical: %t\n", res.StatusMatch, res.BodyMatch, res.Target.Critical)
	}
}
