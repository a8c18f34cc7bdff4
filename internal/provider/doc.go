// Package provider defines the adapter protocol every media generation
// service implements, the tagged Status variant that normalizes provider
// vocabularies, and the built-in adapters.
//
// Adapters are pure: they build RequestSpecs and parse decoded JSON. Network
// I/O belongs to the gateway package, except for adapters that implement
// Executor and answer locally.
package provider
