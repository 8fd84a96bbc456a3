//go:build !onnx

package main

import (
	"github.com/spf13/cobra"

	"github.com/mshafei721/ADOS-sub001/memory"
	"github.com/mshafei721/ADOS-sub001/memory/embedder/hashed"
)

var dimensions int

func addEmbedderFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().IntVar(&dimensions, "dimensions", hashed.DefaultDimensions, "embedding dimensions")
}

func newEmbedder() (memory.Embedder, error) {
	return hashed.New(dimensions), nil
}
