// Package preflight provides readiness checks for the directories, provider
// endpoint, and backing services kiln depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failing check; a
//     failure never blocks startup because jobs fail individually.
//   - The CLI "kiln status" command renders the same results as a table.
//
// Service checks are gated by configuration: the Redis check runs only when
// the snapshot backend is redis.
package preflight
