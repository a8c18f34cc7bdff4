// Package services defines shared utilities consumed by the workflow
// scheduler, session driver, and provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, provider IDs, and correlation
//     identifiers for logging.
//   - The error taxonomy (task creation, provider, polling, validation,
//     plugin validation) plus the Wrap helper that keeps component and
//     operation context attached to each failure.
//
// Use these helpers when wiring new providers or pipelines so job failures
// are classified and reported the same way everywhere.
package services
