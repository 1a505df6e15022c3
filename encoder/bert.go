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
	"fmt"
	"math"
	"strings"

	"github.com/poiesic/tdz/core"
)

// maskedScore is added to attention logits of padding positions.
const maskedScore = -1e9

// linear is a dense layer with weights stored [out][in], as in PyTorch.
type linear struct {
	w       []float32
	b       []float32
	in, out int
}

// forward computes x·Wᵀ + b for rows input vectors of width in.
func (l *linear) forward(x []float32, rows int) []float32 {
	y := make([]float32, rows*l.out)
	for r := 0; r < rows; r++ {
		xr := x[r*l.in : (r+1)*l.in]
		yr := y[r*l.out : (r+1)*l.out]
		for o := 0; o < l.out; o++ {
			wr := l.w[o*l.in : (o+1)*l.in]
			var sum float32
			for i, v := range xr {
				sum += v * wr[i]
			}
			yr[o] = sum + l.b[o]
		}
	}
	return y
}

type layerNorm struct {
	gamma, beta []float32
	eps         float32
}

// apply normalizes each row of x in place.
func (ln *layerNorm) apply(x []float32, rows int) {
	width := len(ln.gamma)
	for r := 0; r < rows; r++ {
		row := x[r*width : (r+1)*width]
		var mean float32
		for _, v := range row {
			mean += v
		}
		mean /= float32(width)
		var variance float32
		for _, v := range row {
			d := v - mean
			variance += d * d
		}
		variance /= float32(width)
		inv := 1 / float32(math.Sqrt(float64(variance+ln.eps)))
		for i, v := range row {
			row[i] = (v-mean)*inv*ln.gamma[i] + ln.beta[i]
		}
	}
}

type bertLayer struct {
	query, key, value linear
	attnOut           linear
	attnNorm          layerNorm
	intermediate      linear
	output            linear
	outNorm           layerNorm
}

// Model is a BERT encoder stack with float32 weights.
type Model struct {
	cfg      BertConfig
	wordEmb  []float32
	posEmb   []float32
	typeEmb  []float32
	embNorm  layerNorm
	layers   []bertLayer
	act      func(float32) float32
	headSize int
}

// weights resolves tensor names with or without a "bert." prefix and with
// either LayerNorm naming convention.
type weights struct {
	tensors map[string]*Tensor
	prefix  string
}

func (w weights) get(name string, shape ...int) ([]float32, error) {
	candidates := []string{w.prefix + name}
	if strings.HasSuffix(name, "LayerNorm.weight") {
		candidates = append(candidates, w.prefix+strings.TrimSuffix(name, "weight")+"gamma")
	}
	if strings.HasSuffix(name, "LayerNorm.bias") {
		candidates = append(candidates, w.prefix+strings.TrimSuffix(name, "bias")+"beta")
	}
	for _, c := range candidates {
		t, ok := w.tensors[c]
		if !ok {
			continue
		}
		if len(t.Shape) != len(shape) {
			return nil, fmt.Errorf("%w: %s has shape %v, want %v", ErrInvalidModel, c, t.Shape, shape)
		}
		for i := range shape {
			if shape[i] >= 0 && t.Shape[i] != shape[i] {
				return nil, fmt.Errorf("%w: %s has shape %v, want %v", ErrInvalidModel, c, t.Shape, shape)
			}
		}
		return t.Data, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMissingTensor, w.prefix+name)
}

func (w weights) linear(name string, in, out int) (linear, error) {
	wt, err := w.get(name+".weight", out, in)
	if err != nil {
		return linear{}, err
	}
	b, err := w.get(name+".bias", out)
	if err != nil {
		return linear{}, err
	}
	return linear{w: wt, b: b, in: in, out: out}, nil
}

func (w weights) layerNorm(name string, width int, eps float32) (layerNorm, error) {
	g, err := w.get(name+".weight", width)
	if err != nil {
		return layerNorm{}, err
	}
	b, err := w.get(name+".bias", width)
	if err != nil {
		return layerNorm{}, err
	}
	return layerNorm{gamma: g, beta: b, eps: eps}, nil
}

// NewModel assembles a Model from loaded tensors.
func NewModel(cfg *BertConfig, tensors map[string]*Tensor) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := weights{tensors: tensors}
	if _, ok := tensors["bert.embeddings.word_embeddings.weight"]; ok {
		w.prefix = "bert."
	}

	h := cfg.HiddenSize
	eps := float32(cfg.LayerNormEps)
	m := &Model{cfg: *cfg, act: activation(cfg.HiddenAct), headSize: h / cfg.NumAttentionHeads}

	var err error
	if m.wordEmb, err = w.get("embeddings.word_embeddings.weight", -1, h); err != nil {
		return nil, err
	}
	if m.posEmb, err = w.get("embeddings.position_embeddings.weight", cfg.MaxPositionEmbeddings, h); err != nil {
		return nil, err
	}
	if m.typeEmb, err = w.get("embeddings.token_type_embeddings.weight", -1, h); err != nil {
		return nil, err
	}
	if m.embNorm, err = w.layerNorm("embeddings.LayerNorm", h, eps); err != nil {
		return nil, err
	}
	m.cfg.VocabSize = len(m.wordEmb) / h

	m.layers = make([]bertLayer, cfg.NumHiddenLayers)
	for i := range m.layers {
		p := fmt.Sprintf("encoder.layer.%d.", i)
		l := &m.layers[i]
		steps := []struct {
			dst     *linear
			name    string
			in, out int
		}{
			{&l.query, p + "attention.self.query", h, h},
			{&l.key, p + "attention.self.key", h, h},
			{&l.value, p + "attention.self.value", h, h},
			{&l.attnOut, p + "attention.output.dense", h, h},
			{&l.intermediate, p + "intermediate.dense", h, cfg.IntermediateSize},
			{&l.output, p + "output.dense", cfg.IntermediateSize, h},
		}
		for _, s := range steps {
			if *s.dst, err = w.linear(s.name, s.in, s.out); err != nil {
				return nil, err
			}
		}
		if l.attnNorm, err = w.layerNorm(p+"attention.output.LayerNorm", h, eps); err != nil {
			return nil, err
		}
		if l.outNorm, err = w.layerNorm(p+"output.LayerNorm", h, eps); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// HiddenSize is the width of every token state and of pooled embeddings.
func (m *Model) HiddenSize() int {
	return m.cfg.HiddenSize
}

// MaxPositions is the longest sequence the position table covers.
func (m *Model) MaxPositions() int {
	return m.cfg.MaxPositionEmbeddings
}

// Forward returns the final hidden states, seqLen rows of HiddenSize.
func (m *Model) Forward(ids, mask []int32) ([]float32, error) {
	n := len(ids)
	h := m.cfg.HiddenSize
	if n == 0 || len(mask) != n {
		return nil, fmt.Errorf("%w: %d ids with %d mask entries", core.ErrEncodingFailure, n, len(mask))
	}
	if n > m.cfg.MaxPositionEmbeddings {
		return nil, fmt.Errorf("%w: sequence of %d exceeds %d positions", core.ErrEncodingFailure, n, m.cfg.MaxPositionEmbeddings)
	}

	x := make([]float32, n*h)
	for t, id := range ids {
		if id < 0 || int(id) >= m.cfg.VocabSize {
			return nil, fmt.Errorf("%w: token id %d outside vocabulary", core.ErrEncodingFailure, id)
		}
		row := x[t*h : (t+1)*h]
		word := m.wordEmb[int(id)*h:]
		pos := m.posEmb[t*h:]
		for i := range row {
			// token type 0 throughout
			row[i] = word[i] + pos[i] + m.typeEmb[i]
		}
	}
	m.embNorm.apply(x, n)

	bias := make([]float32, n)
	for t, v := range mask {
		if v == 0 {
			bias[t] = maskedScore
		}
	}
	for i := range m.layers {
		x = m.layer(&m.layers[i], x, n, bias)
	}
	return x, nil
}

func (m *Model) layer(l *bertLayer, x []float32, n int, bias []float32) []float32 {
	h := m.cfg.HiddenSize
	q := l.query.forward(x, n)
	k := l.key.forward(x, n)
	v := l.value.forward(x, n)

	ctx := make([]float32, n*h)
	scores := make([]float32, n)
	scale := 1 / float32(math.Sqrt(float64(m.headSize)))
	for head := 0; head < m.cfg.NumAttentionHeads; head++ {
		off := head * m.headSize
		for i := 0; i < n; i++ {
			qi := q[i*h+off : i*h+off+m.headSize]
			maxScore := float32(math.Inf(-1))
			for j := 0; j < n; j++ {
				kj := k[j*h+off : j*h+off+m.headSize]
				var dot float32
				for d, qv := range qi {
					dot += qv * kj[d]
				}
				scores[j] = dot*scale + bias[j]
				maxScore = max(maxScore, scores[j])
			}
			var sum float32
			for j := range scores {
				scores[j] = float32(math.Exp(float64(scores[j] - maxScore)))
				sum += scores[j]
			}
			ci := ctx[i*h+off : i*h+off+m.headSize]
			for j := 0; j < n; j++ {
				p := scores[j] / sum
				vj := v[j*h+off : j*h+off+m.headSize]
				for d := range ci {
					ci[d] += p * vj[d]
				}
			}
		}
	}

	attn := l.attnOut.forward(ctx, n)
	for i := range attn {
		attn[i] += x[i]
	}
	l.attnNorm.apply(attn, n)

	inter := l.intermediate.forward(attn, n)
	for i, val := range inter {
		inter[i] = m.act(val)
	}
	out := l.output.forward(inter, n)
	for i := range out {
		out[i] += attn[i]
	}
	l.outNorm.apply(out, n)
	return out
}

// Embed runs Forward and mean-pools the unmasked token states into a unit vector.
func (m *Model) Embed(ids, mask []int32) ([]float32, error) {
	states, err := m.Forward(ids, mask)
	if err != nil {
		return nil, err
	}
	return MeanPool(states, mask, m.cfg.HiddenSize), nil
}

// MeanPool averages the rows of states whose mask entry is non-zero and
// L2 normalizes the result.
func MeanPool(states []float32, mask []int32, width int) []float32 {
	pooled := make([]float32, width)
	var count float32
	for t, v := range mask {
		if v == 0 {
			continue
		}
		row := states[t*width : (t+1)*width]
		for i, x := range row {
			pooled[i] += x
		}
		count++
	}
	if count > 0 {
		for i := range pooled {
			pooled[i] /= count
		}
	}
	return core.Normalize(pooled)
}

func activation(name string) func(float32) float32 {
	switch name {
	case "gelu":
		return func(x float32) float32 {
			return 0.5 * x * (1 + float32(math.Erf(float64(x)/math.Sqrt2)))
		}
	case "gelu_new", "gelu_pytorch_tanh", "gelu_fast":
		return func(x float32) float32 {
			x64 := float64(x)
			return float32(0.5 * x64 * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x64+0.044715*x64*x64*x64))))
		}
	case "relu":
		return func(x float32) float32 {
			return max(x, 0)
		}
	}
	return nil
}
