package output

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"kiln/internal/logging"
	"kiln/internal/services"
)

const tempPattern = "kiln-*.part"

// Downloader fetches rawURL into w.
type Downloader interface {
	Download(ctx context.Context, rawURL, credential string, w io.Writer) (int64, error)
}

// Request describes one completed result to save.
type Request struct {
	JobID      string
	MediaType  string
	URL        string
	Credential string
}

// Saver downloads results and moves them into Dir.
type Saver struct {
	dir        string
	tempDir    string
	downloader Downloader
	logger     *slog.Logger
}

// New constructs a Saver writing finished files to dir and partial
// downloads to tempDir.
func New(dir, tempDir string, downloader Downloader, logger *slog.Logger) *Saver {
	return &Saver{
		dir:        strings.TrimSpace(dir),
		tempDir:    strings.TrimSpace(tempDir),
		downloader: downloader,
		logger:     logging.NewComponentLogger(logger, "output"),
	}
}

// Save downloads req.URL and returns the path of the saved file. A failed
// download leaves nothing behind in either directory.
func (s *Saver) Save(ctx context.Context, req Request) (string, error) {
	if s.dir == "" {
		return "", services.Wrap(services.ErrConfiguration, "output", "save", "output directory is not configured", nil)
	}
	if s.downloader == nil {
		return "", services.Wrap(services.ErrConfiguration, "output", "save", "no downloader configured", nil)
	}
	if strings.TrimSpace(req.URL) == "" {
		return "", services.Wrap(services.ErrValidation, "output", "save", "result URL is empty", nil)
	}

	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "output", "save", "could not create download directory", err)
	}
	tmp, err := os.CreateTemp(s.tempDir, tempPattern)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "output", "save", "could not create download file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	written, err := s.downloader.Download(ctx, req.URL, req.Credential, tmp)
	closeErr := tmp.Close()
	if err != nil {
		return "", services.Wrap(services.ErrProvider, "output", "download", "could not download result", err)
	}
	if closeErr != nil {
		return "", services.Wrap(services.ErrConfiguration, "output", "download", "could not write download file", closeErr)
	}
	if written == 0 {
		return "", services.Wrap(services.ErrProvider, "output", "download", "downloaded result is empty", nil)
	}

	target := filepath.Join(s.dir, FileName(req.JobID, extensionFor(tmpPath, req.URL, req.MediaType)))
	if err := moveFile(tmpPath, target); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "output", "save", "could not move result into output directory", err)
	}
	s.logger.Info("result saved",
		logging.JobID(req.JobID),
		logging.String("path", target),
		logging.Int64("bytes", written),
	)
	return target, nil
}

// FileName is the saved file name for a job's result.
func FileName(jobID, ext string) string {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		jobID = "result"
	}
	return "kiln-" + jobID + ext
}

// CredentialFor returns credential when resultURL shares scheme and host
// with baseURL, and "" otherwise, so provider keys never reach a CDN.
func CredentialFor(resultURL, baseURL, credential string) string {
	if strings.TrimSpace(credential) == "" {
		return ""
	}
	result, err := url.Parse(strings.TrimSpace(resultURL))
	if err != nil || result.Host == "" {
		return ""
	}
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Host == "" {
		return ""
	}
	if !strings.EqualFold(result.Scheme, base.Scheme) || !strings.EqualFold(result.Host, base.Host) {
		return ""
	}
	return credential
}

// CleanTemp removes partial downloads from dir and returns how many entries
// were deleted. A missing dir is not an error.
func CleanTemp(dir string) (int, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read download directory: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// extensionFor prefers the sniffed content type, then the URL path, then a
// per-media default.
func extensionFor(path, rawURL, mediaType string) string {
	if mt, err := mimetype.DetectFile(path); err == nil && !mt.Is("application/octet-stream") && mt.Extension() != "" {
		return mt.Extension()
	}
	if parsed, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(filepath.Ext(parsed.Path))
		if len(ext) > 1 && len(ext) <= 5 {
			return ext
		}
	}
	if strings.EqualFold(strings.TrimSpace(mediaType), "video") {
		return ".mp4"
	}
	return ".png"
}
