package embedding

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"sync"
)

const (
	startOfText = "<|startoftext|>"
	endOfText   = "<|endoftext|>"
	endOfWord   = "</w>"
)

// clipPattern splits lowercased text into the pieces CLIP runs byte-pair merges on.
var clipPattern = regexp.MustCompile(`<\|startoftext\|>|<\|endoftext\|>|'s|'t|'re|'ve|'m|'ll|'d|\p{L}+|\p{N}|[^\s\p{L}\p{N}]+`)

// BPETokenizer reproduces CLIP's byte-level BPE from the vocab.json and merges.txt
// files published with the model (the Hugging Face tokenizer layout).
type BPETokenizer struct {
	encoder   map[string]int64
	ranks     map[[2]string]int
	byteRunes [256]rune
	startID   int64
	endID     int64

	mu    sync.Mutex
	cache map[string][]int64
}

// LoadBPETokenizer reads the vocabulary and merge list from disk.
func LoadBPETokenizer(vocabPath, mergesPath string) (*BPETokenizer, error) {
	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer vocab: %w", err)
	}
	var encoder map[string]int64
	if err := json.Unmarshal(data, &encoder); err != nil {
		return nil, fmt.Errorf("parse tokenizer vocab %s: %w", vocabPath, err)
	}
	if len(encoder) == 0 {
		return nil, fmt.Errorf("tokenizer vocab %s is empty", vocabPath)
	}

	f, err := os.Open(mergesPath)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer merges: %w", err)
	}
	defer f.Close()
	ranks := make(map[[2]string]int)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#version") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("tokenizer merges %s: malformed line %q", mergesPath, line)
		}
		pair := [2]string{parts[0], parts[1]}
		if _, ok := ranks[pair]; !ok {
			ranks[pair] = len(ranks)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tokenizer merges: %w", err)
	}
	return NewBPETokenizer(encoder, ranks)
}

// NewBPETokenizer builds a tokenizer from an in-memory vocabulary and merge ranks
// (lower rank merges first). The vocabulary must contain the CLIP end token.
func NewBPETokenizer(encoder map[string]int64, ranks map[[2]string]int) (*BPETokenizer, error) {
	endID, ok := encoder[endOfText]
	if !ok {
		return nil, errors.New("tokenizer vocab has no " + endOfText + " token")
	}
	startID, ok := encoder[startOfText]
	if !ok {
		startID = clipStartToken
	}
	return &BPETokenizer{
		encoder:   encoder,
		ranks:     ranks,
		byteRunes: byteRuneTable(),
		startID:   startID,
		endID:     endID,
		cache:     make(map[string][]int64),
	}, nil
}

// Tokenize produces contextLength ids: start token, BPE ids, end token, then zero
// padding. Long text is truncated so the end token is always present.
func (t *BPETokenizer) Tokenize(text string, contextLength int) (inputIDs, attentionMask []int64) {
	if contextLength < 2 {
		contextLength = 77
	}
	inputIDs = make([]int64, contextLength)
	attentionMask = make([]int64, contextLength)

	ids := []int64{t.startID}
	clean := strings.ToLower(strings.Join(strings.Fields(text), " "))
	for _, piece := range clipPattern.FindAllString(clean, -1) {
		ids = append(ids, t.encodePiece(piece)...)
		if len(ids) >= contextLength-1 {
			break
		}
	}
	if len(ids) > contextLength-1 {
		ids = ids[:contextLength-1]
	}
	ids = append(ids, t.endID)
	copy(inputIDs, ids)
	for i := range ids {
		attentionMask[i] = 1
	}
	return inputIDs, attentionMask
}

func (t *BPETokenizer) encodePiece(piece string) []int64 {
	switch piece {
	case startOfText:
		return []int64{t.startID}
	case endOfText:
		return []int64{t.endID}
	}
	t.mu.Lock()
	cached, ok := t.cache[piece]
	t.mu.Unlock()
	if ok {
		return cached
	}

	var sb strings.Builder
	for _, b := range []byte(piece) {
		sb.WriteRune(t.byteRunes[b])
	}
	ids := make([]int64, 0, len(piece))
	for _, sym := range t.merge(sb.String()) {
		id, ok := t.encoder[sym]
		if !ok {
			id = t.endID
		}
		ids = append(ids, id)
	}

	t.mu.Lock()
	t.cache[piece] = ids
	t.mu.Unlock()
	return ids
}

// merge applies the ranked merges to one byte-encoded word until no ranked pair remains.
func (t *BPETokenizer) merge(word string) []string {
	runes := []rune(word)
	if len(runes) == 0 {
		return nil
	}
	symbols := make([]string, len(runes))
	for i, r := range runes {
		symbols[i] = string(r)
	}
	symbols[len(symbols)-1] += endOfWord

	for len(symbols) > 1 {
		best, bestRank := -1, math.MaxInt
		for i := 0; i+1 < len(symbols); i++ {
			if rank, ok := t.ranks[[2]string{symbols[i], symbols[i+1]}]; ok && rank < bestRank {
				best, bestRank = i, rank
			}
		}
		if best < 0 {
			break
		}
		first, second := symbols[best], symbols[best+1]
		merged := make([]string, 0, len(symbols))
		for i := 0; i < len(symbols); i++ {
			if i+1 < len(symbols) && symbols[i] == first && symbols[i+1] == second {
				merged = append(merged, first+second)
				i++
				continue
			}
			merged = append(merged, symbols[i])
		}
		symbols = merged
	}
	return symbols
}

// byteRuneTable maps every byte to a printable rune, the GPT-2/CLIP byte encoder:
// printable Latin-1 bytes map to themselves, the rest to runes from U+0100 upward.
func byteRuneTable() [256]rune {
	var table [256]rune
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	n := 0
	for b := 0; b < 256; b++ {
		if printable(b) {
			table[b] = rune(b)
			continue
		}
		table[b] = rune(256 + n)
		n++
	}
	return table
}
