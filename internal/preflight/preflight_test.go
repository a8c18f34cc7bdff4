package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"kiln/internal/registry"
	"kiln/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckEndpoint_Reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	result := CheckEndpoint(context.Background(), "api", srv.URL, "key")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckEndpoint_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if result := CheckEndpoint(context.Background(), "api", srv.URL, "bad"); result.Passed {
		t.Fatal("expected failure for bad key")
	}
	if result := CheckEndpoint(context.Background(), "api", srv.URL, "good"); !result.Passed {
		t.Fatalf("expected pass for good key, got: %s", result.Detail)
	}
}

func TestCheckProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	reg := registry.New()

	cfg := testsupport.NewConfig(t, testsupport.WithProvider("mock", ""))
	if result := CheckProvider(context.Background(), cfg, reg); !result.Passed {
		t.Fatalf("mock provider should pass, got: %s", result.Detail)
	}

	cfg = testsupport.NewConfig(t, testsupport.WithProvider("ghost", "key"))
	if result := CheckProvider(context.Background(), cfg, reg); result.Passed {
		t.Fatal("unknown provider should fail")
	}

	cfg = testsupport.NewConfig(t, testsupport.WithProvider("taskhub", ""))
	if result := CheckProvider(context.Background(), cfg, reg); result.Passed || result.Detail != "API key missing" {
		t.Fatalf("expected missing key failure, got %+v", result)
	}

	cfg = testsupport.NewConfig(t, testsupport.WithProvider("taskhub", "key"))
	cfg.Generation.BaseURL = srv.URL
	if result := CheckProvider(context.Background(), cfg, reg); !result.Passed {
		t.Fatalf("expected reachable provider, got: %s", result.Detail)
	}
}

func TestCheckRedis_InvalidURL(t *testing.T) {
	if result := CheckRedis(context.Background(), "not a url"); result.Passed {
		t.Fatal("expected failure for invalid url")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProvider("mock", ""))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg, registry.New())
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestCheckSystemDepsUsesConfiguredFFmpeg(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	statuses := CheckSystemDeps(cfg)
	if len(statuses) != 1 || !statuses[0].Available {
		t.Fatalf("expected stubbed ffmpeg to be available, got %+v", statuses)
	}
}
