package encoder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizer_Tokenize(t *testing.T) {
	tok := testTokenizer(t)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"subwords", "unaffable", []string{"un", "##aff", "##able"}},
		{"lowercase", "The Quick Brown FOX", []string{"the", "quick", "brown", "fox"}},
		{"accents", "Hélló wörld", []string{"hello", "world"}},
		{"punctuation", "hello, world!", []string{"hello", ",", "world", "!"}},
		{"suffix", "bugs", []string{"bug", "##s"}},
		{"unknown word", "zebra", []string{"[UNK]"}},
		{"partial match is unknown", "foxy", []string{"[UNK]"}},
		{"control chars dropped", "fix\x00\x07 bug", []string{"fix", "bug"}},
		{"cjk isolated", "fix中bug", []string{"fix", "[UNK]", "bug"}},
		{"whitespace only", " \t\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.Tokenize(tt.text))
		})
	}
}

func TestTokenizer_LongWordIsUnknown(t *testing.T) {
	tok := testTokenizer(t)
	assert.Equal(t, []string{"[UNK]"}, tok.Tokenize(strings.Repeat("a", 101)))
}

func TestTokenizer_CaseSensitive(t *testing.T) {
	tok, err := NewTokenizer(testVocab, WithLowercase(false))
	require.NoError(t, err)
	assert.Equal(t, []string{"[UNK]", "fox"}, tok.Tokenize("The fox"))
}

func TestTokenizer_Encode(t *testing.T) {
	tok := testTokenizer(t)

	enc := tok.Encode("fix the login bug", 0)
	assert.Equal(t, []string{"[CLS]", "fix", "the", "login", "bug", "[SEP]"}, enc.Tokens)
	assert.Equal(t, []int32{2, 10, 4, 8, 9, 3}, enc.IDs)
	assert.Equal(t, []int32{1, 1, 1, 1, 1, 1}, enc.AttentionMask)

	truncated := tok.Encode("fix the login bug", 4)
	assert.Equal(t, []string{"[CLS]", "fix", "the", "[SEP]"}, truncated.Tokens)

	empty := tok.Encode("", 8)
	assert.Equal(t, []int32{2, 3}, empty.IDs)
}

func TestTokenizer_EncodeBatchPads(t *testing.T) {
	tok := testTokenizer(t)

	encs := tok.EncodeBatch([]string{"fox", "the quick brown fox"}, 16)
	require.Len(t, encs, 2)
	assert.Len(t, encs[0].IDs, 6)
	assert.Len(t, encs[1].IDs, 6)
	assert.Equal(t, []int32{1, 1, 1, 0, 0, 0}, encs[0].AttentionMask)
	assert.Equal(t, []int32{2, 7, 3, 0, 0, 0}, encs[0].IDs)
}

func TestLoadTokenizerJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, tokenizerFile)
	require.NoError(t, os.WriteFile(path, tokenizerJSONBytes(t, true), 0o644))

	tok, err := LoadTokenizerJSON(path)
	require.NoError(t, err)
	assert.Equal(t, len(testVocab), tok.VocabSize())
	assert.Equal(t, []string{"hello", "world"}, tok.Tokenize("HÉLLO World"))

	cased := filepath.Join(dir, "cased.json")
	require.NoError(t, os.WriteFile(cased, tokenizerJSONBytes(t, false), 0o644))
	tok, err = LoadTokenizerJSON(cased)
	require.NoError(t, err)
	assert.Equal(t, []string{"[UNK]"}, tok.Tokenize("Hello"))
}

func TestLoadVocab(t *testing.T) {
	dir := writeTestModel(t, false)

	tok, err := LoadVocab(filepath.Join(dir, vocabFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"login", "bug"}, tok.Tokenize("Login bug"))
}

func TestNewTokenizer_MissingSpecials(t *testing.T) {
	_, err := NewTokenizer([]string{"[PAD]", "hello"})
	assert.ErrorIs(t, err, ErrInvalidModel)
}
