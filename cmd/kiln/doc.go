// Package main hosts the kiln CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into IPC calls
// against the daemon: job submission and inspection, provider listing and
// plugin reload, actor registration, and daemon lifecycle control. It
// centralizes configuration resolution and socket discovery so subcommands
// can focus on presentation.
package main
