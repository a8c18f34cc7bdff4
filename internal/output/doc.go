// Package output saves completed generation results to local disk.
//
// A Saver downloads the result URL into a scratch directory, names the file
// after the job with an extension sniffed from its content, and moves it into
// the configured output directory. CleanTemp clears partial downloads left by
// a previous daemon run.
package output
