// Package gateway executes provider RequestSpecs over HTTP.
//
// It applies the credential as a bearer token, encodes bodies as JSON or
// multipart form fields, decodes JSON responses into generic values and
// wraps non-JSON responses so adapters always see a decodable shape.
package gateway
