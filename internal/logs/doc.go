// Package logs reads the daemon log file for `kiln logs`.
//
// Last returns the final lines of a file with bounded memory. Follow polls
// for appended lines and starts over when the file shrinks or the
// kilnd.log link is repointed at a new run.
package logs
