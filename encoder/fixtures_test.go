package encoder

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

var testVocab = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]",
	"the", "quick", "brown", "fox", "login", "bug", "fix",
	"un", "##aff", "##able", "##s", ",", "!", "hello", "world",
}

const (
	testHidden = 8
	testHeads  = 2
	testInter  = 16
	testMaxPos = 16
)

// encodeSafetensors serializes tensors as F32 in sorted name order.
func encodeSafetensors(t *testing.T, tensors map[string]*Tensor) []byte {
	t.Helper()
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	slices.Sort(names)

	header := map[string]any{"__metadata__": map[string]string{"format": "pt"}}
	var body []byte
	for _, name := range names {
		tensor := tensors[name]
		start := len(body)
		for _, v := range tensor.Data {
			body = binary.LittleEndian.AppendUint32(body, math.Float32bits(v))
		}
		header[name] = tensorHeader{Dtype: "F32", Shape: tensor.Shape, DataOffsets: [2]int{start, len(body)}}
	}
	hdr, err := json.Marshal(header)
	require.NoError(t, err)

	out := binary.LittleEndian.AppendUint64(nil, uint64(len(hdr)))
	out = append(out, hdr...)
	return append(out, body...)
}

// lcg yields deterministic small weights.
type lcg uint32

func (l *lcg) next() float32 {
	*l = *l*1664525 + 1013904223
	return (float32(*l>>8)/float32(1<<23) - 1) * 0.5
}

func randTensor(g *lcg, shape ...int) *Tensor {
	t := &Tensor{Shape: shape}
	t.Data = make([]float32, t.Len())
	for i := range t.Data {
		t.Data[i] = g.next()
	}
	return t
}

func constTensor(v float32, n int) *Tensor {
	t := &Tensor{Shape: []int{n}, Data: make([]float32, n)}
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

func testConfig(layers int) *BertConfig {
	return &BertConfig{
		ModelType:             "bert",
		VocabSize:             len(testVocab),
		HiddenSize:            testHidden,
		NumHiddenLayers:       layers,
		NumAttentionHeads:     testHeads,
		IntermediateSize:      testInter,
		HiddenAct:             "gelu",
		MaxPositionEmbeddings: testMaxPos,
		TypeVocabSize:         2,
		LayerNormEps:          1e-12,
	}
}

// testTensors builds random weights for cfg with the given name prefix.
func testTensors(cfg *BertConfig, prefix string) map[string]*Tensor {
	g := lcg(7)
	h, in := cfg.HiddenSize, cfg.IntermediateSize
	ts := map[string]*Tensor{
		"embeddings.word_embeddings.weight":       randTensor(&g, cfg.VocabSize, h),
		"embeddings.position_embeddings.weight":   randTensor(&g, cfg.MaxPositionEmbeddings, h),
		"embeddings.token_type_embeddings.weight": randTensor(&g, cfg.TypeVocabSize, h),
		"embeddings.LayerNorm.weight":             constTensor(1, h),
		"embeddings.LayerNorm.bias":               constTensor(0, h),
	}
	for i := 0; i < cfg.NumHiddenLayers; i++ {
		p := "encoder.layer." + string(rune('0'+i)) + "."
		for _, l := range []struct {
			name    string
			in, out int
		}{
			{"attention.self.query", h, h},
			{"attention.self.key", h, h},
			{"attention.self.value", h, h},
			{"attention.output.dense", h, h},
			{"intermediate.dense", h, in},
			{"output.dense", in, h},
		} {
			ts[p+l.name+".weight"] = randTensor(&g, l.out, l.in)
			ts[p+l.name+".bias"] = randTensor(&g, l.out)
		}
		for _, n := range []string{"attention.output.LayerNorm", "output.LayerNorm"} {
			ts[p+n+".weight"] = constTensor(1, h)
			ts[p+n+".bias"] = constTensor(0, h)
		}
	}
	if prefix == "" {
		return ts
	}
	out := make(map[string]*Tensor, len(ts))
	for k, v := range ts {
		out[prefix+k] = v
	}
	return out
}

// writeTestModel writes a complete tiny model directory and returns it.
func writeTestModel(t *testing.T, withTokenizerJSON bool) string {
	t.Helper()
	dir := t.TempDir()
	cfg := testConfig(2)

	cfgJSON, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFile), cfgJSON, 0o644))

	if withTokenizerJSON {
		require.NoError(t, os.WriteFile(filepath.Join(dir, tokenizerFile), tokenizerJSONBytes(t, true), 0o644))
	} else {
		vocab := ""
		for _, tok := range testVocab {
			vocab += tok + "\n"
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, vocabFile), []byte(vocab), 0o644))
	}

	weights := encodeSafetensors(t, testTensors(cfg, ""))
	require.NoError(t, os.WriteFile(filepath.Join(dir, safetensorsFile), weights, 0o644))
	return dir
}

func tokenizerJSONBytes(t *testing.T, lowercase bool) []byte {
	t.Helper()
	vocab := make(map[string]int, len(testVocab))
	for i, tok := range testVocab {
		vocab[tok] = i
	}
	doc := map[string]any{
		"version": "1.0",
		"normalizer": map[string]any{
			"type":                 "BertNormalizer",
			"clean_text":           true,
			"handle_chinese_chars": true,
			"strip_accents":        nil,
			"lowercase":            lowercase,
		},
		"pre_tokenizer": map[string]any{"type": "BertPreTokenizer"},
		"model": map[string]any{
			"type":                      "WordPiece",
			"unk_token":                 "[UNK]",
			"continuing_subword_prefix": "##",
			"max_input_chars_per_word":  100,
			"vocab":                     vocab,
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

func testTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tok, err := NewTokenizer(testVocab)
	require.NoError(t, err)
	return tok
}

func testModel(t *testing.T) *Model {
	t.Helper()
	cfg := testConfig(2)
	m, err := NewModel(cfg, testTensors(cfg, ""))
	require.NoError(t, err)
	return m
}
