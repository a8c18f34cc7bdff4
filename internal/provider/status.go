package provider

import "strings"

// Kind classifies a normalized provider status.
type Kind int

const (
	kindUnset Kind = iota
	KindProcessing
	KindCompleted
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindCompleted:
		return "completed"
	case KindFailed:
		return "failed"
	default:
		return "processing"
	}
}

// Status is the normalized outcome of a submit or status response. It can
// only be built through Processing, Completed or Failed; the zero value reads
// as Processing with no progress.
type Status struct {
	kind     Kind
	progress *int
	url      string
	reason   string
}

// Processing reports a task that is still running. progress may be nil when
// the provider does not report one.
func Processing(progress *int) Status {
	s := Status{kind: KindProcessing}
	if progress != nil {
		value := *progress
		s.progress = &value
	}
	return s
}

// Completed reports a finished task and the URL of its result.
func Completed(url string) Status {
	return Status{kind: KindCompleted, url: url}
}

// Failed reports a terminal provider failure.
func Failed(reason string) Status {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "provider reported failure without detail"
	}
	return Status{kind: KindFailed, reason: reason}
}

// Kind returns the status classification.
func (s Status) Kind() Kind {
	if s.kind == kindUnset {
		return KindProcessing
	}
	return s.kind
}

// Progress returns the reported progress, if any.
func (s Status) Progress() (int, bool) {
	if s.progress == nil {
		return 0, false
	}
	return *s.progress, true
}

// URL returns the result URL of a completed status.
func (s Status) URL() string { return s.url }

// Reason returns the failure reason of a failed status.
func (s Status) Reason() string { return s.reason }

// Terminal reports whether the status ends the job.
func (s Status) Terminal() bool {
	k := s.Kind()
	return k == KindCompleted || k == KindFailed
}

func (s Status) String() string {
	switch s.Kind() {
	case KindCompleted:
		return "completed(" + s.url + ")"
	case KindFailed:
		return "failed(" + s.reason + ")"
	default:
		return "processing"
	}
}

// Vocabulary maps provider status words onto status kinds. Words outside
// both lists are treated as processing.
type Vocabulary struct {
	Completed []string
	Failed    []string
}

// DefaultVocabulary covers the common status words seen across providers.
var DefaultVocabulary = Vocabulary{
	Completed: []string{"succeeded", "completed", "success"},
	Failed:    []string{"failed", "error", "cancelled", "canceled"},
}

// Classify reduces a raw status word. Matching ignores case and surrounding space.
func (v Vocabulary) Classify(word string) Kind {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return KindProcessing
	}
	for _, candidate := range v.Completed {
		if strings.EqualFold(strings.TrimSpace(candidate), word) {
			return KindCompleted
		}
	}
	for _, candidate := range v.Failed {
		if strings.EqualFold(strings.TrimSpace(candidate), word) {
			return KindFailed
		}
	}
	return KindProcessing
}

// ClampProgress bounds a progress value to [0,100].
func ClampProgress(value int) int {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}

// completedWithURL returns Completed when url is present and a failure otherwise.
func completedWithURL(url string) Status {
	url = strings.TrimSpace(url)
	if url == "" {
		return Failed("provider reported completion without a result URL")
	}
	return Completed(url)
}
