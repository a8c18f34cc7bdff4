// Package actor registers reusable characters with providers that support
// them.
//
// Each item is a still image plus a clip range. The pipeline validates every
// item before touching the disk or network, renders the image into a short
// silent H.264 clip with ffmpeg, uploads the clip to a blob store (MinIO or an
// HTTP form endpoint), and finally registers the uploaded URL through the
// provider's actor adapter. Items run concurrently; encoding is serialized
// across goroutines and processes.
package actor
