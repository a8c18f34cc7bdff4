package workflow

import (
	"context"
	"strings"

	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/output"
	"kiln/internal/provider"
)

// saveResult downloads a completed result into [output] dir. Failures are
// logged and leave the job completed with its URL.
func (m *Manager) saveResult(ctx context.Context, cfg *config.Config, session *Session, outcome *Outcome) {
	dir := strings.TrimSpace(cfg.Output.Dir)
	if dir == "" || outcome.ResultURL == "" {
		return
	}
	logger := logging.WithContext(ctx, m.logger)
	downloader, ok := m.gateway.(output.Downloader)
	if !ok {
		logger.Debug("gateway cannot download results; leaving result at its URL")
		return
	}

	base := provider.EffectiveBaseURL(session.Request, session.Adapter.Descriptor())
	saver := output.New(dir, cfg.DownloadDir(), downloader, m.logger)
	path, err := saver.Save(ctx, output.Request{
		JobID:      session.Job.ID,
		MediaType:  session.Job.MediaType,
		URL:        outcome.ResultURL,
		Credential: output.CredentialFor(outcome.ResultURL, base, session.Request.Credential),
	})
	m.metrics.ResultDownloaded(session.Job.MediaType, err == nil)
	if err != nil {
		logging.WarnWithContext(logger, "result download failed", "result_download_failed",
			logging.Error(err),
			logging.String("result_url", outcome.ResultURL),
			logging.String(logging.FieldErrorHint, "check output.dir permissions and that the result URL is still valid"),
			logging.String(logging.FieldImpact, "job stays completed; the result is only available at its URL"),
		)
		return
	}
	if m.queue.SetOutputPath(session.Job.ID, path) {
		outcome.OutputPath = path
	}
}
