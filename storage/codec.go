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

package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/tdz/core"
)

// encoder appends MUS-encoded primitives to a growing buffer.
type encoder struct {
	buf []byte
}

func (e *encoder) reserve(n int) []byte {
	l := len(e.buf)
	e.buf = slices.Grow(e.buf, n)[:l+n]
	return e.buf[l:]
}

func (e *encoder) uint(v uint64) {
	varint.Uint64.Marshal(v, e.reserve(varint.Uint64.Size(v)))
}

func (e *encoder) int(v int64) {
	varint.Int64.Marshal(v, e.reserve(varint.Int64.Size(v)))
}

func (e *encoder) string(s string) {
	ord.String.Marshal(s, e.reserve(ord.String.Size(s)))
}

func (e *encoder) bool(b bool) {
	ord.Bool.Marshal(b, e.reserve(ord.Bool.Size(b)))
}

// time stores microsecond precision.
func (e *encoder) time(t time.Time) {
	e.int(t.UnixMicro())
}

func (e *encoder) strings(ss []string) {
	e.uint(uint64(len(ss)))
	for _, s := range ss {
		e.string(s)
	}
}

func (e *encoder) ids(ids []core.ID) {
	e.uint(uint64(len(ids)))
	for _, id := range ids {
		e.string(string(id))
	}
}

func (e *encoder) floats(v []float32) {
	e.uint(uint64(len(v)))
	for _, f := range v {
		raw.Float32.Marshal(f, e.reserve(raw.Float32.Size(f)))
	}
}

// decoder consumes MUS-encoded primitives. The first failure sticks and
// every later read returns a zero value.
type decoder struct {
	bs  []byte
	err error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
}

func (d *decoder) uint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs)
	if err != nil {
		d.fail(err)
		return 0
	}
	d.bs = d.bs[n:]
	return v
}

func (d *decoder) int() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs)
	if err != nil {
		d.fail(err)
		return 0
	}
	d.bs = d.bs[n:]
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs)
	if err != nil {
		d.fail(err)
		return ""
	}
	d.bs = d.bs[n:]
	return v
}

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs)
	if err != nil {
		d.fail(err)
		return false
	}
	d.bs = d.bs[n:]
	return v
}

func (d *decoder) time() time.Time {
	return time.UnixMicro(d.int()).UTC()
}

// count reads a collection length and rejects lengths that cannot fit in
// the remaining bytes given a minimum element width.
func (d *decoder) count(width int) int {
	n := d.uint()
	if d.err != nil {
		return 0
	}
	if n > uint64(len(d.bs)/width) {
		d.fail(ErrTruncatedData)
		return 0
	}
	return int(n)
}

func (d *decoder) strings() []string {
	n := d.count(1)
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for range n {
		out = append(out, d.string())
	}
	return out
}

func (d *decoder) ids() []core.ID {
	n := d.count(1)
	if n == 0 {
		return nil
	}
	out := make([]core.ID, 0, n)
	for range n {
		out = append(out, core.ID(d.string()))
	}
	return out
}

func (d *decoder) floats() []float32 {
	n := d.count(4)
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		v, m, err := raw.Float32.Unmarshal(d.bs)
		if err != nil {
			d.fail(err)
			return nil
		}
		d.bs = d.bs[m:]
		out[i] = v
	}
	return out
}

// done reports the sticky error or unconsumed trailing bytes.
func (d *decoder) done() error {
	if d.err != nil {
		return d.err
	}
	if len(d.bs) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(d.bs))
	}
	return nil
}
