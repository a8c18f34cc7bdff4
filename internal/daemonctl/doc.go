// Package daemonctl launches, stops, and inspects the kiln daemon process
// on behalf of the CLI.
//
// Start and stop go through the IPC socket first. Stop then signals the
// process recorded in the pid file so the daemon can write its final
// snapshot before exiting. BuildStatusSnapshot reads the persisted job
// history when the daemon is not reachable.
package daemonctl
