// Package notifications delivers job and queue events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Each event kind
// can be toggled individually so noisy batches do not flood a phone.
//
// Workflow code depends only on the Service interface.
package notifications
