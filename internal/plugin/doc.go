// Package plugin loads external providers from declarative TOML manifests.
//
// A manifest names the provider, lists its models, describes the submit and
// status requests as text/template strings and maps response fields and
// status words onto the provider protocol. Manifests never run code; a
// manifest that fails validation is excluded and reported with its path.
package plugin
