// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package encoder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	clsToken = "[CLS]"
	sepToken = "[SEP]"
	padToken = "[PAD]"
	unkToken = "[UNK]"
)

// Tokenizer is a BERT WordPiece tokenizer.
type Tokenizer struct {
	vocab        map[string]int32
	unk          string
	prefix       string
	maxWordChars int
	lowercase    bool
	stripAccents bool
	cls, sep     int32
	pad, unkID   int32
}

// TokenizerOption configures a Tokenizer built from a plain vocabulary.
type TokenizerOption func(*Tokenizer)

// WithLowercase controls lowercasing and accent stripping. Default true.
func WithLowercase(lower bool) TokenizerOption {
	return func(t *Tokenizer) {
		t.lowercase = lower
		t.stripAccents = lower
	}
}

// NewTokenizer builds a tokenizer whose token ids are the vocab positions.
func NewTokenizer(vocab []string, opts ...TokenizerOption) (*Tokenizer, error) {
	m := make(map[string]int32, len(vocab))
	for i, tok := range vocab {
		if _, dup := m[tok]; !dup {
			m[tok] = int32(i)
		}
	}
	t := &Tokenizer{
		vocab:        m,
		unk:          unkToken,
		prefix:       "##",
		maxWordChars: 100,
		lowercase:    true,
		stripAccents: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.resolveSpecials(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tokenizer) resolveSpecials() error {
	for _, s := range []struct {
		tok string
		dst *int32
	}{{clsToken, &t.cls}, {sepToken, &t.sep}, {padToken, &t.pad}, {t.unk, &t.unkID}} {
		id, ok := t.vocab[s.tok]
		if !ok {
			return fmt.Errorf("%w: vocabulary lacks %s", ErrInvalidModel, s.tok)
		}
		*s.dst = id
	}
	return nil
}

// LoadVocab reads a vocab.txt file with one token per line.
func LoadVocab(path string, opts ...TokenizerOption) (*Tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	defer f.Close()

	var vocab []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		vocab = append(vocab, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	return NewTokenizer(vocab, opts...)
}

type tokenizerJSON struct {
	Normalizer *normalizerJSON `json:"normalizer"`
	Model      struct {
		Type                    string           `json:"type"`
		UnkToken                string           `json:"unk_token"`
		ContinuingSubwordPrefix string           `json:"continuing_subword_prefix"`
		MaxInputCharsPerWord    int              `json:"max_input_chars_per_word"`
		Vocab                   map[string]int32 `json:"vocab"`
	} `json:"model"`
}

type normalizerJSON struct {
	Type         string            `json:"type"`
	Lowercase    *bool             `json:"lowercase"`
	StripAccents *bool             `json:"strip_accents"`
	Normalizers  []*normalizerJSON `json:"normalizers"`
}

// LoadTokenizerJSON reads a tokenizer.json file with a WordPiece model.
func LoadTokenizerJSON(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	var tj tokenizerJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return nil, fmt.Errorf("%w: tokenizer.json: %w", ErrInvalidModel, err)
	}
	if tj.Model.Type != "" && tj.Model.Type != "WordPiece" {
		return nil, fmt.Errorf("%w: unsupported tokenizer model %s", ErrInvalidModel, tj.Model.Type)
	}
	if len(tj.Model.Vocab) == 0 {
		return nil, fmt.Errorf("%w: tokenizer.json has an empty vocabulary", ErrInvalidModel)
	}

	t := &Tokenizer{
		vocab:        tj.Model.Vocab,
		unk:          tj.Model.UnkToken,
		prefix:       tj.Model.ContinuingSubwordPrefix,
		maxWordChars: tj.Model.MaxInputCharsPerWord,
	}
	if t.unk == "" {
		t.unk = unkToken
	}
	if t.prefix == "" {
		t.prefix = "##"
	}
	if t.maxWordChars <= 0 {
		t.maxWordChars = 100
	}
	t.lowercase, t.stripAccents = tj.Normalizer.flags()
	if err := t.resolveSpecials(); err != nil {
		return nil, err
	}
	return t, nil
}

func (n *normalizerJSON) flags() (lower, strip bool) {
	if n == nil {
		return false, false
	}
	switch n.Type {
	case "BertNormalizer":
		lower = n.Lowercase == nil || *n.Lowercase
		strip = lower
		if n.StripAccents != nil {
			strip = *n.StripAccents
		}
	case "Lowercase":
		lower = true
	case "StripAccents":
		strip = true
	case "Sequence":
		for _, sub := range n.Normalizers {
			l, s := sub.flags()
			lower = lower || l
			strip = strip || s
		}
	}
	return lower, strip
}

// VocabSize returns the number of distinct token ids.
func (t *Tokenizer) VocabSize() int {
	return len(t.vocab)
}

// Tokenize splits text into WordPiece tokens without special tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	var out []string
	for _, word := range t.basicTokenize(text) {
		out = append(out, t.wordPiece(word)...)
	}
	return out
}

// basicTokenize cleans text, optionally lowercases and strips accents, and
// splits on whitespace, punctuation and CJK characters.
func (t *Tokenizer) basicTokenize(text string) []string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r == 0 || r == utf8.RuneError || isControl(r):
			continue
		case isWhitespace(r):
			b.WriteByte(' ')
		case isCJK(r):
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	var words []string
	for _, word := range strings.Fields(b.String()) {
		if t.lowercase {
			word = strings.ToLower(word)
		}
		if t.stripAccents {
			word = stripAccents(word)
		}
		words = append(words, splitPunctuation(word)...)
	}
	return words
}

func stripAccents(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func splitPunctuation(word string) []string {
	var out []string
	start := -1
	for i, r := range word {
		if isPunctuation(r) {
			if start >= 0 {
				out = append(out, word[start:i])
				start = -1
			}
			out = append(out, string(r))
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, word[start:])
	}
	return out
}

// wordPiece applies greedy longest-match-first segmentation.
func (t *Tokenizer) wordPiece(word string) []string {
	runes := []rune(word)
	if len(runes) > t.maxWordChars {
		return []string{t.unk}
	}
	var pieces []string
	for start := 0; start < len(runes); {
		end := len(runes)
		var piece string
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = t.prefix + sub
			}
			if _, ok := t.vocab[sub]; ok {
				piece = sub
				break
			}
			end--
		}
		if piece == "" {
			return []string{t.unk}
		}
		pieces = append(pieces, piece)
		start = end
	}
	return pieces
}

// Encoding is a tokenized sequence ready for the model.
type Encoding struct {
	IDs           []int32
	AttentionMask []int32
	Tokens        []string
}

// Encode tokenizes text, wraps it in [CLS] and [SEP] and truncates to maxLen.
func (t *Tokenizer) Encode(text string, maxLen int) Encoding {
	tokens := t.Tokenize(text)
	if maxLen > 2 && len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}
	enc := Encoding{
		IDs:           make([]int32, 0, len(tokens)+2),
		AttentionMask: make([]int32, 0, len(tokens)+2),
		Tokens:        make([]string, 0, len(tokens)+2),
	}
	add := func(tok string, id int32) {
		enc.Tokens = append(enc.Tokens, tok)
		enc.IDs = append(enc.IDs, id)
		enc.AttentionMask = append(enc.AttentionMask, 1)
	}
	add(clsToken, t.cls)
	for _, tok := range tokens {
		id, ok := t.vocab[tok]
		if !ok {
			id = t.unkID
		}
		add(tok, id)
	}
	add(sepToken, t.sep)
	return enc
}

// EncodeBatch encodes texts and pads every sequence to the longest one.
func (t *Tokenizer) EncodeBatch(texts []string, maxLen int) []Encoding {
	encs := make([]Encoding, len(texts))
	longest := 0
	for i, text := range texts {
		encs[i] = t.Encode(text, maxLen)
		longest = max(longest, len(encs[i].IDs))
	}
	for i := range encs {
		for len(encs[i].IDs) < longest {
			encs[i].IDs = append(encs[i].IDs, t.pad)
			encs[i].AttentionMask = append(encs[i].AttentionMask, 0)
			encs[i].Tokens = append(encs[i].Tokens, padToken)
		}
	}
	return encs
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.In(r, unicode.Cc, unicode.Cf)
}

func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
