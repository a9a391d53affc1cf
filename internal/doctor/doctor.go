// Package doctor runs startup diagnostics against a coordination kernel
// instance: config, database, filesystem permissions, and port
// availability. It is read-only and safe to run against a live instance.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/aiswarm/swarmd/internal/config"
	"github.com/aiswarm/swarmd/internal/persistence"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Run executes all diagnostic checks against cfg.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkDatabase,
		checkPermissions,
		checkPortRange,
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}

	return d
}

func checkConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "configuration not loaded"}
	}
	if cfg.NeedsGenesis {
		return CheckResult{Name: "Config", Status: "WARN", Message: "no config.yaml found, running on defaults"}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("loaded from %s", cfg.HomeDir)}
}

func checkDatabase(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Database", Status: "SKIP", Message: "config missing"}
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = persistence.DefaultDBPath(cfg.WorkingDirectory)
	}

	store, err := persistence.Open(dbPath)
	if err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("open failed: %v", err), Detail: dbPath}
	}
	defer store.Close()

	op := store.BeginOperation(ctx)
	defer op.Close()
	if _, err := persistence.ListAgents(op.Read(), ""); err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("query failed: %v", err)}
	}

	return CheckResult{Name: "Database", Status: "PASS", Message: "connection and schema valid", Detail: dbPath}
}

func checkPermissions(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Permissions", Status: "SKIP", Message: "config missing"}
	}

	testFile := filepath.Join(cfg.HomeDir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("home dir unwritable: %v", err)}
	}
	os.Remove(testFile)

	return CheckResult{Name: "Permissions", Status: "PASS", Message: "home directory writable"}
}

func checkPortRange(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "HTTP Port Range", Status: "SKIP", Message: "config missing"}
	}
	if cfg.HTTPPortStart <= 0 || cfg.HTTPPortEnd < cfg.HTTPPortStart {
		return CheckResult{
			Name:    "HTTP Port Range",
			Status:  "FAIL",
			Message: fmt.Sprintf("invalid range [%d, %d]", cfg.HTTPPortStart, cfg.HTTPPortEnd),
		}
	}
	return CheckResult{
		Name:    "HTTP Port Range",
		Status:  "PASS",
		Message: fmt.Sprintf("scanning [%d, %d] for the MCP HTTP transport", cfg.HTTPPortStart, cfg.HTTPPortEnd),
	}
}
