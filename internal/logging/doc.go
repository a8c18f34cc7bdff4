// Package logging assembles the slog loggers shared by the kiln daemon and CLI.
//
// It owns the console and JSON handlers, the standard field names used in
// structured output, and context helpers that tag log lines with the job,
// provider and request identifiers carried on a context.Context.
package logging
