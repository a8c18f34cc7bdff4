package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"kiln/internal/logging"
	"kiln/internal/services"
)

// Rejection records a manifest that failed to load.
type Rejection struct {
	Path string
	Err  error
}

// Result is the outcome of one discovery pass.
type Result struct {
	Adapters []*Adapter
	Rejected []Rejection
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Discover loads every *.toml manifest in dir, creating dir when missing.
// Bad manifests are logged and skipped; duplicate ids keep the first file
// in name order. reserved lists ids that manifests may not claim.
func Discover(dir string, reserved []string, logger *slog.Logger) (Result, error) {
	logger = logging.NewComponentLogger(logger, "plugin")
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return Result{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create plugin directory: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.toml"))
	if err != nil {
		return Result{}, fmt.Errorf("scan plugin directory: %w", err)
	}
	sort.Strings(matches)

	taken := make(map[string]string, len(reserved)+len(matches))
	for _, id := range reserved {
		taken[id] = "builtin"
	}

	var result Result
	for _, path := range matches {
		adapter, err := LoadFile(path)
		if err == nil {
			id := adapter.Descriptor().ID
			if owner, exists := taken[id]; exists {
				err = services.Wrap(services.ErrPluginValidation, "plugin", "load",
					fmt.Sprintf("provider id %q already registered by %s", id, owner), nil)
			} else {
				taken[id] = path
			}
		}
		if err != nil {
			logging.WarnWithContext(logger, "plugin manifest rejected", "plugin_validation",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix the manifest and run kiln providers reload"),
				logging.String(logging.FieldImpact, "provider unavailable until fixed"),
			)
			result.Rejected = append(result.Rejected, Rejection{Path: path, Err: err})
			continue
		}
		logger.Info("plugin loaded",
			logging.String("path", path),
			logging.Provider(adapter.Descriptor().ID),
			logging.String("version", adapter.Descriptor().Version),
		)
		result.Adapters = append(result.Adapters, adapter)
	}
	return result, nil
}

// LoadFile parses, validates and compiles a single manifest.
func LoadFile(path string) (*Adapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrPluginValidation, "plugin", "read", path, err)
	}
	return Parse(path, data)
}

// Parse builds an adapter from manifest bytes. source is recorded on the
// descriptor and used in error messages.
func Parse(source string, data []byte) (*Adapter, error) {
	var manifest Manifest
	decoder := toml.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&manifest); err != nil {
		return nil, services.Wrap(services.ErrPluginValidation, "plugin", "parse", source, err)
	}
	normalizeManifest(&manifest)
	if err := validateManifest(manifest); err != nil {
		return nil, services.Wrap(services.ErrPluginValidation, "plugin", "validate", source, err)
	}
	adapter, err := compile(source, manifest)
	if err != nil {
		return nil, services.Wrap(services.ErrPluginValidation, "plugin", "compile", source, err)
	}
	return adapter, nil
}

func normalizeManifest(m *Manifest) {
	m.Plugin.ID = strings.TrimSpace(m.Plugin.ID)
	m.Plugin.Name = strings.TrimSpace(m.Plugin.Name)
	m.Plugin.Version = strings.TrimPrefix(strings.TrimSpace(m.Plugin.Version), "v")
	m.Plugin.BaseURL = strings.TrimRight(strings.TrimSpace(m.Plugin.BaseURL), "/")
	m.Submit.Method = strings.ToUpper(strings.TrimSpace(m.Submit.Method))
	m.Status.Method = strings.ToUpper(strings.TrimSpace(m.Status.Method))
}

func validateManifest(m Manifest) error {
	if err := validate.Struct(m); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			parts := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(parts, "; "))
		}
		return err
	}
	if len(m.Models.Image) == 0 && len(m.Models.Video) == 0 {
		return errors.New("models: at least one image or video model is required")
	}
	if m.Submit.Response.TaskID == "" && m.Submit.Response.ResultURL == "" {
		return errors.New("submit.response: task_id or result_url path is required")
	}
	if m.Status.Response.Status == "" {
		return errors.New("status.response.status path is required")
	}
	return nil
}

type compiledRequest struct {
	method    string
	url       *template.Template
	headers   map[string]*template.Template
	body      *template.Template
	multipart bool
}

func compileRequest(name, method, url string, headers map[string]string, body string, multipart bool) (compiledRequest, error) {
	out := compiledRequest{method: method, multipart: multipart, headers: make(map[string]*template.Template, len(headers))}
	var err error
	if out.url, err = newTemplate(name+".url", url); err != nil {
		return compiledRequest{}, err
	}
	for key, value := range headers {
		if out.headers[key], err = newTemplate(name+".headers."+key, value); err != nil {
			return compiledRequest{}, err
		}
	}
	if strings.TrimSpace(body) != "" {
		if out.body, err = newTemplate(name+".body", body); err != nil {
			return compiledRequest{}, err
		}
	}
	return out, nil
}

func compile(source string, m Manifest) (*Adapter, error) {
	submit, err := compileRequest("submit", m.Submit.Method, m.Submit.URL, m.Submit.Headers, m.Submit.Body, m.Submit.Multipart)
	if err != nil {
		return nil, err
	}
	status, err := compileRequest("status", m.Status.Method, m.Status.URL, m.Status.Headers, m.Status.Body, false)
	if err != nil {
		return nil, err
	}
	return &Adapter{source: source, manifest: m, submit: submit, status: status}, nil
}
