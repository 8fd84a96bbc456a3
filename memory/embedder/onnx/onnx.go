//go:build onnx

package onnx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/charmbracelet/log"
	ort "github.com/yalue/onnxruntime_go"
)

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string `mapstructure:"model_path"`

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string `mapstructure:"tokenizer_path"`

	// SharedLibraryPath locates libonnxruntime. Empty uses the runtime's default lookup.
	SharedLibraryPath string `mapstructure:"shared_library_path"`

	// Dimensions is the embedding vector size (default: 384 for all-MiniLM-L6-v2).
	Dimensions int `mapstructure:"dimensions"`

	// MaxSequenceLength bounds the token count per text (default: 128).
	MaxSequenceLength int `mapstructure:"max_sequence_length"`
}

// Embedder generates embeddings using ONNX Runtime.
type Embedder struct {
	mu         sync.Mutex // serializes session.Run
	session    *ort.DynamicAdvancedSession
	tokenizer  *Tokenizer
	dimensions int
	maxLen     int
	logger     *log.Logger
}

// New loads the tokenizer and model.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("onnx: ModelPath is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}
	if cfg.MaxSequenceLength <= 2 {
		cfg.MaxSequenceLength = 128
	}

	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	tokenizer, err := LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	logger := log.Default().WithPrefix("onnx")
	logger.Info("loaded embedding model", "model", cfg.ModelPath, "dimensions", cfg.Dimensions)

	return &Embedder{
		session:    session,
		tokenizer:  tokenizer,
		dimensions: cfg.Dimensions,
		maxLen:     cfg.MaxSequenceLength,
		logger:     logger,
	}, nil
}

// Embed converts text to a unit embedding vector by mean pooling the last
// hidden state over attended tokens.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := e.tokenizer.Encode(text, e.maxLen)
	inputIDs := make([]int64, e.maxLen)
	attentionMask := make([]int64, e.maxLen)
	tokenTypeIDs := make([]int64, e.maxLen)
	copy(inputIDs, ids)
	for i := range ids {
		attentionMask[i] = 1
	}

	shape := ort.NewShape(1, int64(e.maxLen))
	inputs := make([]ort.Value, 0, 3)
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, data := range [][]int64{inputIDs, attentionMask, tokenTypeIDs} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		inputs = append(inputs, t)
	}

	// Outputs are allocated by Run.
	outputs := []ort.Value{nil}
	e.mu.Lock()
	err := e.session.Run(inputs, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok || out == nil {
		return nil, errors.New("onnx: unexpected output tensor type")
	}
	return pool(out.GetData(), out.GetShape(), attentionMask, e.dimensions)
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close releases ONNX resources.
func (e *Embedder) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}

// pool turns [1, dim] or [1, seq, dim] output into one normalized vector.
func pool(data []float32, shape ort.Shape, mask []int64, dim int) ([]float32, error) {
	embedding := make([]float32, dim)

	switch len(shape) {
	case 2:
		if len(data) < dim {
			return nil, fmt.Errorf("output dimension mismatch: got %d, expected %d", len(data), dim)
		}
		copy(embedding, data[:dim])
	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("expected batch size 1, got %d", shape[0])
		}
		if shape[2] != int64(dim) {
			return nil, fmt.Errorf("hidden size mismatch: got %d, expected %d", shape[2], dim)
		}
		var attended float32
		for i := 0; i < int(shape[1]) && i < len(mask); i++ {
			if mask[i] == 0 {
				continue
			}
			attended++
			row := data[i*dim : (i+1)*dim]
			for j, v := range row {
				embedding[j] += v
			}
		}
		if attended > 0 {
			for j := range embedding {
				embedding[j] /= attended
			}
		}
	default:
		return nil, fmt.Errorf("unexpected output shape: %v", shape)
	}

	var norm float32
	for _, v := range embedding {
		norm += v * v
	}
	if norm == 0 {
		return embedding, nil
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range embedding {
		embedding[i] /= norm
	}
	return embedding, nil
}
