package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// getRegimeDir finds an optional directory of user regime tables
func getRegimeDir() (string, bool) {
	// Try current directory first
	if info, err := os.Stat("regimes"); err == nil && info.IsDir() {
		return "regimes", true
	}

	// Try relative to executable
	exe, err := os.Executable()
	if err == nil {
		dir := filepath.Join(filepath.Dir(exe), "regimes")
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, true
		}
	}

	return "", false
}

func parseTickRate(rate string) (time.Duration, error) {
	var hz float64
	_, err := fmt.Sscanf(rate, "%fhz", &hz)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q, expected e.g. 1hz or 0.5hz", rate)
	}
	if hz <= 0 {
		return 0, fmt.Errorf("rate must be positive")
	}
	return time.Duration(float64(time.Second) / hz), nil
}

// parseStart reads an RFC 3339 timestamp, or returns the default when empty
func parseStart(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --start %q: %w", value, err)
	}
	return t, nil
}
