//go:build onnx

package main

import (
	"github.com/spf13/cobra"

	"github.com/mshafei721/ADOS-sub001/memory"
	"github.com/mshafei721/ADOS-sub001/memory/embedder/hashed"
	"github.com/mshafei721/ADOS-sub001/memory/embedder/onnx"
)

var onnxConfig onnx.Config

func addEmbedderFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&onnxConfig.ModelPath, "onnx-model", "", "ONNX sentence-transformer model; empty uses the hashed embedder")
	f.StringVar(&onnxConfig.TokenizerPath, "onnx-tokenizer", "", "tokenizer.json for the ONNX model")
	f.StringVar(&onnxConfig.SharedLibraryPath, "onnx-runtime", "", "path to libonnxruntime")
	f.IntVar(&onnxConfig.Dimensions, "dimensions", hashed.DefaultDimensions, "embedding dimensions")
}

func newEmbedder() (memory.Embedder, error) {
	if onnxConfig.ModelPath == "" {
		return hashed.New(onnxConfig.Dimensions), nil
	}
	return onnx.New(onnxConfig)
}
