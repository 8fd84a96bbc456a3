// Package onnx embeds text with a local sentence-transformer model through
// ONNX Runtime. The runtime binding needs cgo and libonnxruntime, so the
// Embedder is only built with -tags onnx; the tokenizer is always available.
package onnx
