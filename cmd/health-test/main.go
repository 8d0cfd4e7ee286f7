package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
)

type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status    string                     `json:"status"`
	Timestamp string                     `json:"timestamp"`
	Version   string                     `json:"version"`
	Services  map[string]componentStatus `json:"services"`
}

func main() {
	url := pflag.StringP("url", "u", "http://localhost:8080/health", "health endpoint to probe")
	timeout := pflag.Duration("timeout", 10*time.Second, "request timeout")
	required := pflag.StringSlice("require", []string{"database"}, "components that must report ok")
	pflag.Parse()

	fmt.Printf("🔍 Testing health endpoint: %s\n", *url)

	client := &http.Client{
		Timeout: *timeout,
	}

	resp, err := client.Get(*url)
	if err != nil {
		fmt.Printf("❌ Error connecting to health endpoint: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("❌ Error reading response: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("📊 Response Status: %s\n", resp.Status)
	fmt.Printf("📄 Response Body: %s\n", string(body))

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("❌ Health check failed with status: %d\n", resp.StatusCode)
		os.Exit(1)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		fmt.Printf("❌ Error parsing JSON response: %v\n", err)
		os.Exit(1)
	}

	if health.Status != "ok" {
		fmt.Printf("❌ Health status is not 'ok': %s\n", health.Status)
		os.Exit(1)
	}

	for _, name := range *required {
		component, ok := health.Services[name]
		if !ok || component.Status != "ok" {
			fmt.Printf("❌ %s status is not 'ok': %s\n", name, component.Status)
			if component.Error != "" {
				fmt.Printf("   %s error: %s\n", name, component.Error)
			}
			os.Exit(1)
		}
	}

	fmt.Printf("✅ Health check passed!\n")
	fmt.Printf("   Status: %s\n", health.Status)
	fmt.Printf("   Version: %s\n", health.Version)
	for name, component := range health.Services {
		fmt.Printf("   %s: %s\n", name, component.Status)
	}
	fmt.Printf("   Timestamp: %s\n", health.Timestamp)
}
