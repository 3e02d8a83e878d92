package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var url string

	if len(args) == 0 {
		url = fmt.Sprintf("%s/api/v1/jobs", serverURL)
		return listJobs(url)
	}

	jobID := args[0]
	url = fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID)
	return getJobStatus(url, jobID)
}

func listJobs(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		config, _ := job["config"].(map[string]interface{})
		fmt.Printf("Job ID: %s\n", job["id"])
		fmt.Printf("  State: %s\n", job["state"])
		fmt.Printf("  Objective: %v  Algorithm: %v  Engine: %v\n", config["objective"], config["algorithm"], config["engine"])
		if bestF, ok := job["bestF"].(float64); ok {
			fmt.Printf("  Best f: %.6g\n", bestF)
		}
		fmt.Println()
	}

	return nil
}

func getJobStatus(url, jobID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Job: %s\n", status["id"])
	fmt.Printf("State: %s\n", status["state"])
	fmt.Println()

	config, _ := status["config"].(map[string]interface{})
	fmt.Println("Configuration:")
	fmt.Printf("  Objective: %v\n", config["objective"])
	fmt.Printf("  Algorithm: %v\n", config["algorithm"])
	fmt.Printf("  Engine: %v\n", config["engine"])
	fmt.Printf("  Dim: %v\n", config["dim"])
	fmt.Printf("  Retries target: %v\n", config["numRetries"])
	fmt.Println()

	fmt.Println("Progress:")
	if bestF, ok := status["bestF"].(float64); ok {
		fmt.Printf("  Best f: %.6g\n", bestF)
	}
	if retries, ok := status["retries"].(float64); ok {
		fmt.Printf("  Retries completed: %.0f\n", retries)
	}
	if evals, ok := status["evaluations"].(float64); ok {
		fmt.Printf("  Evaluations: %.0f\n", evals)
	}
	if storeSize, ok := status["storeSize"].(float64); ok && storeSize > 0 {
		fmt.Printf("  Elite store size: %.0f\n", storeSize)
	}

	if elapsed, ok := status["elapsed"].(float64); ok {
		fmt.Printf("  Elapsed: %s\n", time.Duration(elapsed*float64(time.Second)).Round(time.Millisecond))
	}
	if evalsPerSec, ok := status["evalsPerSec"].(float64); ok && evalsPerSec > 0 {
		fmt.Printf("  Throughput: %.0f evals/sec\n", evalsPerSec)
	}

	if errMsg, ok := status["error"].(string); ok && errMsg != "" {
		fmt.Printf("\nError: %s\n", errMsg)
	}

	return nil
}
