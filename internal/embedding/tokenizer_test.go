package embedding

import (
	"testing"
)

func TestCLIPTokenizer_Tokenize(t *testing.T) {
	tok := &CLIPTokenizer{}
	ids, attn := tok.Tokenize("A dog, running", 10)
	if len(ids) != 10 || len(attn) != 10 {
		t.Fatalf("len(ids)=%d len(attn)=%d", len(ids), len(attn))
	}
	if ids[0] != clipStartToken {
		t.Errorf("expected start token %d, got %d", clipStartToken, ids[0])
	}
	if ids[4] != clipEndToken {
		t.Errorf("expected end token after 3 words, got %v", ids)
	}
	for i := 1; i < 4; i++ {
		if ids[i] < clipVocabBase || ids[i] >= clipStartToken {
			t.Errorf("word token %d out of range: %d", i, ids[i])
		}
	}
	for i, a := range attn {
		want := int64(0)
		if i <= 4 {
			want = 1
		}
		if a != want {
			t.Errorf("attention[%d]=%d, want %d", i, a, want)
		}
	}

	upper, _ := tok.Tokenize("A DOG running", 10)
	for i := range ids {
		if ids[i] != upper[i] {
			t.Fatalf("tokenization should be case-insensitive and ignore punctuation: %v vs %v", ids, upper)
		}
	}
}

func TestCLIPTokenizer_Truncates(t *testing.T) {
	tok := &CLIPTokenizer{}
	ids, attn := tok.Tokenize("one two three four five six", 4)
	if ids[3] != clipEndToken || attn[3] != 1 {
		t.Errorf("long text should end with end token: %v", ids)
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  a  b, c!  ")
	if len(words) != 3 {
		t.Errorf("expected 3 words, got %v", words)
	}
	if SplitWords("") != nil {
		t.Error("empty string should return nil")
	}
}

func TestHashString(t *testing.T) {
	h := HashString("abc")
	if h == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("a much longer string that overflows the accumulator many times over") < 0 {
		t.Error("hash should be non-negative")
	}
}

func TestNewTokenizer(t *testing.T) {
	tok, err := NewTokenizer("", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tok.(*CLIPTokenizer); !ok {
		t.Errorf("no files: got %T, want *CLIPTokenizer", tok)
	}
	if _, err := NewTokenizer("vocab.json", ""); err == nil {
		t.Error("expected error when only vocab is set")
	}
	if _, err := NewTokenizer("", "merges.txt"); err == nil {
		t.Error("expected error when only merges is set")
	}
}
