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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Tensor is a dense row-major float32 array.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Len returns the element count implied by Shape.
func (t *Tensor) Len() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

type tensorHeader struct {
	Dtype       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// maxHeaderSize bounds the JSON header of a safetensors file.
const maxHeaderSize = 100 << 20

// LoadSafetensors reads every tensor in a safetensors file, converting
// F16, BF16 and F64 data to float32.
func LoadSafetensors(path string) (map[string]*Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	return ParseSafetensors(data)
}

// ParseSafetensors decodes an in-memory safetensors file: an 8-byte
// little-endian header length, a JSON header, then the raw tensor bytes.
func ParseSafetensors(data []byte) (map[string]*Tensor, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: safetensors file too short", ErrInvalidModel)
	}
	n := binary.LittleEndian.Uint64(data[:8])
	if n > maxHeaderSize || n > uint64(len(data)-8) {
		return nil, fmt.Errorf("%w: safetensors header length %d out of range", ErrInvalidModel, n)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+n], &raw); err != nil {
		return nil, fmt.Errorf("%w: safetensors header: %w", ErrInvalidModel, err)
	}
	body := data[8+n:]

	tensors := make(map[string]*Tensor, len(raw))
	for name, msg := range raw {
		if name == "__metadata__" {
			continue
		}
		var h tensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %w", ErrInvalidModel, name, err)
		}
		t, err := decodeTensor(h, body)
		if err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %w", ErrInvalidModel, name, err)
		}
		tensors[name] = t
	}
	return tensors, nil
}

func decodeTensor(h tensorHeader, body []byte) (*Tensor, error) {
	start, end := h.DataOffsets[0], h.DataOffsets[1]
	if start < 0 || end < start || end > len(body) {
		return nil, fmt.Errorf("data offsets [%d, %d) outside %d bytes", start, end, len(body))
	}
	t := &Tensor{Shape: h.Shape}
	count := t.Len()
	raw := body[start:end]

	var width int
	switch h.Dtype {
	case "F32":
		width = 4
	case "F16", "BF16":
		width = 2
	case "F64":
		width = 8
	default:
		return nil, fmt.Errorf("unsupported dtype %s", h.Dtype)
	}
	if len(raw) != count*width {
		return nil, fmt.Errorf("%d bytes for %d %s elements", len(raw), count, h.Dtype)
	}

	t.Data = make([]float32, count)
	for i := range t.Data {
		b := raw[i*width:]
		switch h.Dtype {
		case "F32":
			t.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		case "F16":
			t.Data[i] = halfToFloat(binary.LittleEndian.Uint16(b))
		case "BF16":
			t.Data[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(b)) << 16)
		case "F64":
			t.Data[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		}
	}
	return t, nil
}

// halfToFloat converts an IEEE 754 binary16 value.
func halfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	switch {
	case exp == 0 && frac == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// subnormal
		v := float32(frac) / 1024 * float32(math.Pow(2, -14))
		if sign != 0 {
			v = -v
		}
		return v
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | frac<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
}
