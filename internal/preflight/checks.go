package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sys/unix"

	"kiln/internal/config"
	"kiln/internal/deps"
	"kiln/internal/provider"
	"kiln/internal/registry"
)

// CheckProvider verifies that the configured provider is registered, has a
// credential, and that its base URL answers HTTP.
func CheckProvider(ctx context.Context, cfg *config.Config, reg *registry.Registry) Result {
	id := cfg.Generation.ProviderID
	name := "Provider " + id

	adapter, ok := reg.Lookup(id)
	if !ok {
		return Result{Name: name, Detail: "not registered (jobs fall back to mock)"}
	}
	if id == provider.MockID {
		return Result{Name: name, Passed: true, Detail: "local mock provider"}
	}
	if strings.TrimSpace(cfg.Generation.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	base := provider.EffectiveBaseURL(provider.GenerationRequest{BaseURL: cfg.Generation.BaseURL}, adapter.Descriptor())
	if base == "" {
		return Result{Name: name, Detail: "base URL missing"}
	}
	return CheckEndpoint(ctx, name, base, cfg.Generation.APIKey)
}

// CheckEndpoint reports whether baseURL answers HTTP within five seconds.
// Any response other than 401 or 403 counts as reachable.
func CheckEndpoint(ctx context.Context, name, baseURL, apiKey string) Result {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("reachability check failed (%v)", err)}
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	default:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", base)}
	}
}

// CheckRedis verifies that the snapshot Redis server answers PING.
func CheckRedis(ctx context.Context, url string) Result {
	const name = "Redis snapshot"

	opts, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid redis_url (%v)", err)}
	}
	client := redis.NewClient(opts)
	defer client.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(checkCtx).Err(); err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", opts.Addr)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external binaries for cfg. Both the daemon
// and the CLI status command use it.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckAll(deps.Requirements(cfg))
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	return err.Error()
}
