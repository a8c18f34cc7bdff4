package plugin

// Manifest is the on-disk description of an external provider.
type Manifest struct {
	Plugin Info            `toml:"plugin" validate:"required"`
	Models Models          `toml:"models"`
	Submit RequestTemplate `toml:"submit" validate:"required"`
	Status StatusTemplate  `toml:"status" validate:"required"`
}

// Info identifies the provider.
type Info struct {
	ID          string `toml:"id" validate:"required,lowercase,min=2,max=64,excludesall= /\\"`
	Name        string `toml:"name" validate:"required"`
	Version     string `toml:"version" validate:"required,semver"`
	Description string `toml:"description"`
	BaseURL     string `toml:"base_url" validate:"omitempty,url"`
}

// Models lists supported models per media type.
type Models struct {
	Image []string `toml:"image" validate:"dive,required"`
	Video []string `toml:"video" validate:"dive,required"`
}

// ResponsePaths are dotted lookup paths into a decoded response.
type ResponsePaths struct {
	TaskID    string `toml:"task_id"`
	Status    string `toml:"status"`
	Progress  string `toml:"progress"`
	ResultURL string `toml:"result_url"`
	Error     string `toml:"error"`
}

// RequestTemplate describes the submit request.
type RequestTemplate struct {
	Method    string            `toml:"method" validate:"required,oneof=GET POST PUT DELETE"`
	URL       string            `toml:"url" validate:"required"`
	Headers   map[string]string `toml:"headers"`
	Body      string            `toml:"body"`
	Multipart bool              `toml:"multipart"`
	Response  ResponsePaths     `toml:"response"`
}

// StatusTemplate describes the status request and its vocabulary.
type StatusTemplate struct {
	Method     string            `toml:"method" validate:"required,oneof=GET POST PUT DELETE"`
	URL        string            `toml:"url" validate:"required"`
	Headers    map[string]string `toml:"headers"`
	Body       string            `toml:"body"`
	Response   ResponsePaths     `toml:"response"`
	Vocabulary Vocabulary        `toml:"vocabulary"`
}

// Vocabulary lists provider status words for terminal states.
type Vocabulary struct {
	Completed []string `toml:"completed" validate:"min=1,dive,required"`
	Failed    []string `toml:"failed" validate:"min=1,dive,required"`
}
