package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Status   int    `json:"status"`
	Critical bool   `json:"critical"`
	Envelope bool   `json:"envelope"`
}

type targetFile struct {
	Targets []target `json:"targets"`
}

type result struct {
	Target   target
	Status   int
	Duration time.Duration
	Problems []string
	Error    error
}

func (r result) ok() bool {
	return r.Error == nil && len(r.Problems) == 0
}

func main() {
	var (
		base        string
		targetsPath string
		token       string
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "smoke_check", "targets.json"), "Path to JSON targets file")
	flag.StringVar(&token, "token", "", "Optional bearer token sent with every request")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := resty.New().SetBaseURL(strings.TrimRight(base, "/")).SetTimeout(timeout)
	if token != "" {
		client.SetAuthToken(token)
	}

	var (
		results  []result
		breaking int
		optional int
	)
	for _, t := range targets {
		res := check(client, t)
		if !res.ok() {
			if t.Critical {
				breaking++
			} else {
				optional++
			}
		}
		results = append(results, res)
	}

	printReport(results)
	fmt.Printf("Breaking failures: %d, Optional failures: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file targetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return file.Targets, nil
}

func check(client *resty.Client, tgt target) result {
	res := result{Target: tgt}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	resp, err := client.R().Execute(method, path)
	if err != nil {
		res.Error = err
		return res
	}
	res.Status = resp.StatusCode()
	res.Duration = resp.Time()

	want := tgt.Status
	if want == 0 {
		want = http.StatusOK
	}
	if res.Status != want {
		res.Problems = append(res.Problems, fmt.Sprintf("status %d, want %d", res.Status, want))
	}
	if tgt.Envelope {
		res.Problems = append(res.Problems, envelopeProblems(resp.Body(), res.Status)...)
	}
	return res
}

// envelopeProblems checks the {success, data|error} response contract.
func envelopeProblems(body []byte, status int) []string {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return []string{"body is not a JSON object"}
	}
	var problems []string
	raw, ok := env["success"]
	if !ok {
		return []string{"missing success field"}
	}
	var success bool
	if err := json.Unmarshal(raw, &success); err != nil {
		problems = append(problems, "success is not a boolean")
	}
	if status >= 400 {
		if success {
			problems = append(problems, "success=true on error status")
		}
		if _, ok := env["error"]; !ok {
			problems = append(problems, "missing error object")
		}
	} else if !success {
		problems = append(problems, "success=false on 2xx status")
	}
	return problems
}

func printReport(results []result) {
	fmt.Println("Smoke Check Report")
	fmt.Println("==================")
	for _, res := range results {
		status := "OK"
		switch {
		case res.Error != nil:
			status = "ERROR"
		case len(res.Problems) > 0:
			status = "FAIL"
		}
		fmt.Printf("[%s] %s %s\n", status, res.Target.Method, res.Target.Path)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		fmt.Printf("  Status: %d (%s) | Critical: %t\n", res.Status, res.Duration, res.Target.Critical)
		for _, p := range res.Problems {
			fmt.Printf("  - %s\n", p)
		}
	}
}
