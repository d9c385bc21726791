package embedding

import (
	"errors"
	"strings"
	"unicode"
)

const (
	clipStartToken = 49406 // <|startoftext|>
	clipEndToken   = 49407 // <|endoftext|>
	clipVocabBase  = 256   // ids below this are byte tokens
)

// Tokenizer produces token IDs and attention mask for the text encoder.
type Tokenizer interface {
	Tokenize(text string, contextLength int) (inputIDs, attentionMask []int64)
}

// NewTokenizer returns the BPE tokenizer when vocab and merges files are both
// given, and the hash-based CLIPTokenizer when neither is.
func NewTokenizer(vocabPath, mergesPath string) (Tokenizer, error) {
	switch {
	case vocabPath == "" && mergesPath == "":
		return &CLIPTokenizer{}, nil
	case vocabPath == "" || mergesPath == "":
		return nil, errors.New("tokenizer vocab and merges paths must be set together")
	}
	return LoadBPETokenizer(vocabPath, mergesPath)
}

// CLIPTokenizer is a word-split tokenizer with hash-based token IDs wrapped in
// CLIP start/end tokens. It does not reproduce CLIP's BPE vocabulary; it is the
// fallback for ONNX text encoders exported with a hashed vocabulary and for tests.
// Against a stock CLIP text encoder its ids carry no meaning; use BPETokenizer there.
type CLIPTokenizer struct{}

// Tokenize lowercases text, splits it into words and produces contextLength
// token IDs: start token, word ids, end token, then zero padding.
func (t *CLIPTokenizer) Tokenize(text string, contextLength int) (inputIDs, attentionMask []int64) {
	if contextLength < 2 {
		contextLength = 77
	}
	inputIDs = make([]int64, contextLength)
	attentionMask = make([]int64, contextLength)

	inputIDs[0] = clipStartToken
	attentionMask[0] = 1

	pos := 1
	for _, word := range SplitWords(strings.ToLower(text)) {
		if pos >= contextLength-1 {
			break
		}
		inputIDs[pos] = int64(clipVocabBase + HashString(word)%(clipStartToken-clipVocabBase))
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = clipEndToken
	attentionMask[pos] = 1
	return inputIDs, attentionMask
}

// SplitWords splits text on whitespace and punctuation and returns non-empty words.
func SplitWords(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if len(words) == 0 {
		return nil
	}
	return words
}

// HashString returns a deterministic non-negative hash for use as a simple token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	if h < 0 {
		// -MinInt overflows back to MinInt.
		h = 0
	}
	return h
}
