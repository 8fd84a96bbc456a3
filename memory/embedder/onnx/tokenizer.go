package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Special token ids shared by the uncased BERT vocabularies.
const (
	unkID = 100
	clsID = 101
	sepID = 102
)

// Tokenizer does BERT-style WordPiece tokenization from a tokenizer.json vocab.
type Tokenizer struct {
	vocab map[string]int
}

// LoadTokenizer reads the model.vocab section of a Hugging Face tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}

	var spec struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(spec.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocab", path)
	}
	return NewTokenizer(spec.Model.Vocab), nil
}

// NewTokenizer wraps an in-memory vocab.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	return &Tokenizer{vocab: vocab}
}

// Encode converts text to token ids wrapped in [CLS] ... [SEP], truncated to
// maxLen ids in total.
func (t *Tokenizer) Encode(text string, maxLen int) []int64 {
	ids := []int64{clsID}
	for _, word := range splitWords(text) {
		for _, piece := range t.wordPieces(word) {
			if len(ids) >= maxLen-1 {
				return append(ids, sepID)
			}
			ids = append(ids, piece)
		}
	}
	return append(ids, sepID)
}

// wordPieces splits one word into the longest vocab prefixes, using the ##
// continuation marker after the first piece.
func (t *Tokenizer) wordPieces(word string) []int64 {
	if id, ok := t.vocab[word]; ok {
		return []int64{int64(id)}
	}

	var pieces []int64
	runes := []rune(word)
	for start := 0; start < len(runes); {
		end := len(runes)
		matched := false
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				pieces = append(pieces, int64(id))
				matched = true
				break
			}
		}
		if !matched {
			// One unknown piece stands for the whole word.
			return []int64{unkID}
		}
		start = end
	}
	return pieces
}

// splitWords lowercases text and splits on whitespace, isolating punctuation.
func splitWords(text string) []string {
	var (
		words []string
		cur   strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}
