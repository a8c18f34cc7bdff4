package plugin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"kiln/internal/provider"
	"kiln/internal/services"
)

// Adapter is a provider.Adapter driven by a manifest.
type Adapter struct {
	source   string
	manifest Manifest
	submit   compiledRequest
	status   compiledRequest
}

var _ provider.Adapter = (*Adapter)(nil)

// templateData is the value templates render against.
type templateData struct {
	Prompt      string
	Credential  string
	BaseURL     string
	Model       string
	AspectRatio string
	MediaType   string
	Duration    int
	TaskID      string
}

var templateFuncs = template.FuncMap{
	"json": func(v any) (string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	},
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"default": func(fallback, value any) any {
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			return fallback
		}
		if value == nil {
			return fallback
		}
		return value
	},
}

func newTemplate(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
}

// Source returns the manifest path.
func (a *Adapter) Source() string { return a.source }

func (a *Adapter) Descriptor() provider.Descriptor {
	models := map[string][]string{}
	if len(a.manifest.Models.Image) > 0 {
		models[provider.MediaImage] = append([]string(nil), a.manifest.Models.Image...)
	}
	if len(a.manifest.Models.Video) > 0 {
		models[provider.MediaVideo] = append([]string(nil), a.manifest.Models.Video...)
	}
	return provider.Descriptor{
		ID:          a.manifest.Plugin.ID,
		Name:        a.manifest.Plugin.Name,
		Description: a.manifest.Plugin.Description,
		Version:     a.manifest.Plugin.Version,
		Provenance:  provider.ProvenanceExternal,
		BaseURL:     a.manifest.Plugin.BaseURL,
		Models:      models,
		Source:      a.source,
	}
}

func (a *Adapter) data(req provider.GenerationRequest, taskID string) templateData {
	d := a.Descriptor()
	mediaType := provider.MediaImage
	if strings.EqualFold(req.MediaType, provider.MediaVideo) {
		mediaType = provider.MediaVideo
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = d.DefaultModel(mediaType)
	}
	return templateData{
		Prompt:      req.Prompt,
		Credential:  req.Credential,
		BaseURL:     provider.EffectiveBaseURL(req, d),
		Model:       model,
		AspectRatio: req.AspectRatio,
		MediaType:   mediaType,
		Duration:    req.Duration,
		TaskID:      taskID,
	}
}

func (a *Adapter) BuildSubmitRequest(req provider.GenerationRequest) (provider.RequestSpec, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.RequestSpec{}, services.Wrap(services.ErrValidation, "plugin", "build request", "prompt is empty", nil)
	}
	return a.render("submit", a.submit, a.data(req, ""))
}

func (a *Adapter) ParseSubmitResponse(raw any) provider.SubmitResult {
	paths := a.manifest.Submit.Response
	return provider.SubmitResult{
		TaskID: provider.StringAt(raw, paths.TaskID),
		Status: a.reduce(raw, paths),
	}
}

func (a *Adapter) BuildStatusRequest(taskID string, req provider.GenerationRequest) (provider.RequestSpec, error) {
	if strings.TrimSpace(taskID) == "" {
		return provider.RequestSpec{}, services.Wrap(services.ErrValidation, "plugin", "build status request", "task id is empty", nil)
	}
	return a.render("status", a.status, a.data(req, taskID))
}

func (a *Adapter) ParseStatusResponse(raw any) provider.Status {
	return a.reduce(raw, a.manifest.Status.Response)
}

func (a *Adapter) reduce(raw any, paths ResponsePaths) provider.Status {
	vocabulary := provider.Vocabulary{
		Completed: a.manifest.Status.Vocabulary.Completed,
		Failed:    a.manifest.Status.Vocabulary.Failed,
	}
	word := ""
	if paths.Status != "" {
		word = provider.StringAt(raw, paths.Status)
	}
	resultURL := ""
	if paths.ResultURL != "" {
		resultURL = provider.StringAt(raw, paths.ResultURL)
	}
	errorText := ""
	if paths.Error != "" {
		errorText = provider.StringAt(raw, paths.Error)
	}

	kind := vocabulary.Classify(word)
	if word == "" {
		switch {
		case errorText != "":
			kind = provider.KindFailed
		case resultURL != "":
			kind = provider.KindCompleted
		}
	}

	switch kind {
	case provider.KindCompleted:
		if resultURL == "" {
			return provider.Failed("provider reported completion without a result URL")
		}
		return provider.Completed(resultURL)
	case provider.KindFailed:
		if errorText == "" {
			errorText = fmt.Sprintf("provider reported status %q", word)
		}
		return provider.Failed(errorText)
	default:
		if paths.Progress == "" {
			return provider.Processing(nil)
		}
		return provider.Processing(provider.ProgressAt(raw, paths.Progress))
	}
}

func (a *Adapter) render(name string, req compiledRequest, data templateData) (provider.RequestSpec, error) {
	url, err := execute(req.url, data)
	if err != nil {
		return provider.RequestSpec{}, a.renderError(name+".url", err)
	}
	spec := provider.RequestSpec{
		Method:    req.method,
		URL:       strings.TrimSpace(url),
		Multipart: req.multipart,
	}
	if len(req.headers) > 0 {
		spec.Headers = make(map[string]string, len(req.headers))
		for key, tmpl := range req.headers {
			value, err := execute(tmpl, data)
			if err != nil {
				return provider.RequestSpec{}, a.renderError(name+".headers."+key, err)
			}
			spec.Headers[key] = value
		}
	}
	if req.body != nil {
		text, err := execute(req.body, data)
		if err != nil {
			return provider.RequestSpec{}, a.renderError(name+".body", err)
		}
		var body any
		if err := json.Unmarshal([]byte(text), &body); err != nil {
			return provider.RequestSpec{}, a.renderError(name+".body", fmt.Errorf("rendered body is not valid JSON: %w", err))
		}
		spec.Body = body
	}
	return spec, nil
}

func (a *Adapter) renderError(field string, err error) error {
	return services.Wrap(services.ErrValidation, "plugin", "render "+field,
		fmt.Sprintf("plugin %s (%s)", a.manifest.Plugin.ID, a.source), err)
}

func execute(tmpl *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
