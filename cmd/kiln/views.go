package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"kiln/internal/api"
)

const promptColumnWidth = 48

var titleCaser = cases.Title(language.English)

func statusTitle(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return "Unknown"
	}
	return titleCaser.String(status)
}

func buildJobRows(jobs []api.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			api.ShortID(job.ID),
			statusTitle(job.Status),
			api.ProgressLabel(job),
			job.Provider,
			job.MediaType,
			truncateText(job.Prompt, promptColumnWidth),
			formatDisplayTime(job.CreatedAt),
		})
	}
	return rows
}

func buildQueueStatusRows(stats api.QueueStats) [][]string {
	counts := []struct {
		status string
		count  int
	}{
		{"pending", stats.Pending},
		{"processing", stats.Processing},
		{"completed", stats.Completed},
		{"failed", stats.Failed},
	}
	rows := make([][]string, 0, len(counts))
	for _, entry := range counts {
		if entry.count == 0 {
			continue
		}
		rows = append(rows, []string{statusTitle(entry.status), strconv.Itoa(entry.count)})
	}
	return rows
}

func buildProviderRows(providers []api.Provider) [][]string {
	rows := make([][]string, 0, len(providers))
	for _, p := range providers {
		id := p.ID
		if p.Default {
			id += " *"
		}
		rows = append(rows, []string{
			id,
			p.Name,
			p.Provenance,
			p.Version,
			strings.Join(mediaTypes(p.Models), ", "),
			yesNo(p.Actors),
		})
	}
	return rows
}

func mediaTypes(models map[string][]string) []string {
	var out []string
	for _, media := range []string{"image", "video"} {
		if len(models[media]) > 0 {
			out = append(out, media)
		}
	}
	return out
}

func buildActorRows(actors []api.Actor) [][]string {
	rows := make([][]string, 0, len(actors))
	for _, a := range actors {
		rows = append(rows, []string{a.ID, a.Name, a.Username, formatDisplayTime(a.CreatedAt)})
	}
	return rows
}

func buildActorResultRows(results []api.ActorResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		outcome := "registered"
		detail := ""
		if r.Actor != nil {
			detail = r.Actor.ID
		}
		if !r.OK {
			outcome = "failed"
			detail = r.Error
		}
		rows = append(rows, []string{r.Name, outcome, detail})
	}
	return rows
}

func jobDetailLines(job api.Job) []string {
	lines := []string{
		fmt.Sprintf("ID:        %s", job.ID),
		fmt.Sprintf("Batch:     %s", job.BatchID),
		fmt.Sprintf("Status:    %s", statusTitle(job.Status)),
		fmt.Sprintf("Progress:  %s", api.ProgressLabel(job)),
		fmt.Sprintf("Provider:  %s", job.Provider),
		fmt.Sprintf("Media:     %s", job.MediaType),
	}
	if job.Model != "" {
		lines = append(lines, fmt.Sprintf("Model:     %s", job.Model))
	}
	if job.AspectRatio != "" {
		lines = append(lines, fmt.Sprintf("Aspect:    %s", job.AspectRatio))
	}
	if job.Duration > 0 {
		lines = append(lines, fmt.Sprintf("Duration:  %ds", job.Duration))
	}
	lines = append(lines, fmt.Sprintf("Prompt:    %s", job.Prompt))
	if job.ResultURL != "" {
		lines = append(lines, fmt.Sprintf("Result:    %s", job.ResultURL))
	}
	if job.OutputPath != "" {
		lines = append(lines, fmt.Sprintf("Saved:     %s", job.OutputPath))
	}
	if job.Error != "" {
		lines = append(lines, fmt.Sprintf("Error:     %s", job.Error))
	}
	lines = append(lines,
		fmt.Sprintf("Created:   %s", formatDisplayTime(job.CreatedAt)),
		fmt.Sprintf("Updated:   %s", formatDisplayTime(job.UpdatedAt)),
	)
	return lines
}

func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(deps))
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			if dep.Version != "" {
				message += " " + truncateText(dep.Version, 40)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	return lines
}

func checkLines(checks []api.CheckResult, colorize bool) []string {
	lines := make([]string, 0, len(checks))
	for _, check := range checks {
		kind := statusOK
		if !check.Passed {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	return lines
}

func systemLines(status *api.DaemonStatus, colorize bool) []string {
	var lines []string
	if status.Running {
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusError, "Not running", colorize))
	}
	lines = append(lines,
		renderStatusLine("Provider", statusInfo, status.ProviderID, colorize),
		renderStatusLine("Snapshot", statusInfo, status.SnapshotBackend, colorize),
		renderStatusLine("Plugins", statusInfo, status.PluginDir, colorize),
	)
	wf := status.Workflow
	if status.Running {
		lines = append(lines, renderStatusLine("Sessions", statusInfo,
			fmt.Sprintf("%d of %d slots in use", wf.Sessions, wf.Concurrency), colorize))
	}
	if wf.LastError != "" {
		lines = append(lines, renderStatusLine("Last Error", statusWarn, wf.LastError, colorize))
	}
	return lines
}

func truncateText(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit-1]) + "…"
}

func formatDisplayTime(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return value
	}
	return t.Local().Format(time.DateTime)
}
