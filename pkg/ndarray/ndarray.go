// Package ndarray implements a small row-major float64 tensor used for sample-major
// datasets: (samples, time-steps, features) arrays, their 2D flattenings, and 1D columns.
//
// Every operation that derives a new array copies data, so results never alias inputs.
package ndarray

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/spf13/cast"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Array is a dense N-dimensional float64 array in row-major order.
type Array struct {
	shape []int
	data  []float64
}

func sizeOf(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("ndarray: negative dimension in shape %v", shape)
		}
		n *= d
	}
	return n, nil
}

// New creates an array with the given shape, copying data.
func New(shape []int, data []float64) (*Array, error) {
	n, err := sizeOf(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("ndarray: shape %v needs %d values, got %d", shape, n, len(data))
	}
	return &Array{
		shape: append([]int(nil), shape...),
		data:  append(make([]float64, 0, n), data...),
	}, nil
}

// MustNew is New for literals in tests and fixtures. It panics on error.
func MustNew(shape []int, data []float64) *Array {
	a, err := New(shape, data)
	if err != nil {
		panic(err)
	}
	return a
}

// Zeros returns a zero-filled array. It panics on a negative dimension, like make.
func Zeros(shape ...int) *Array {
	n, err := sizeOf(shape)
	if err != nil {
		panic(err)
	}
	return &Array{shape: append([]int(nil), shape...), data: make([]float64, n)}
}

// Shape returns a copy of the array's shape.
func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }

// Rank is the number of dimensions.
func (a *Array) Rank() int { return len(a.shape) }

// Len is the size of the sample axis (axis 0), or 0 for a scalar.
func (a *Array) Len() int {
	if len(a.shape) == 0 {
		return 0
	}
	return a.shape[0]
}

// Size is the total number of elements.
func (a *Array) Size() int { return len(a.data) }

// Dim returns the size of one axis.
func (a *Array) Dim(axis int) int { return a.shape[axis] }

// Data returns a copy of the flat row-major values.
func (a *Array) Data() []float64 { return append([]float64(nil), a.data...) }

// Clone deep-copies the array.
func (a *Array) Clone() *Array {
	return &Array{shape: a.Shape(), data: a.Data()}
}

func (a *Array) offset(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("ndarray: %d indices for rank %d", len(idx), len(a.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= a.shape[i] {
			panic(fmt.Sprintf("ndarray: index %d out of range for axis %d of size %d", v, i, a.shape[i]))
		}
		off = off*a.shape[i] + v
	}
	return off
}

// At returns the element at idx.
func (a *Array) At(idx ...int) float64 { return a.data[a.offset(idx)] }

// Set stores v at idx.
func (a *Array) Set(v float64, idx ...int) { a.data[a.offset(idx)] = v }

func (a *Array) checkAxis(axis int) error {
	if axis < 0 || axis >= len(a.shape) {
		return fmt.Errorf("ndarray: axis %d out of range for rank %d", axis, len(a.shape))
	}
	return nil
}

// split returns the element counts before, along, and after axis.
func (a *Array) split(axis int) (outer, dim, inner int) {
	outer, inner = 1, 1
	for _, d := range a.shape[:axis] {
		outer *= d
	}
	for _, d := range a.shape[axis+1:] {
		inner *= d
	}
	return outer, a.shape[axis], inner
}

// Rows returns samples [start, end) along axis 0.
func (a *Array) Rows(start, end int) (*Array, error) {
	if len(a.shape) == 0 {
		return nil, fmt.Errorf("ndarray: cannot slice a scalar")
	}
	if start < 0 || end < start || end > a.shape[0] {
		return nil, fmt.Errorf("ndarray: rows [%d:%d] out of range for length %d", start, end, a.shape[0])
	}
	_, _, inner := a.split(0)
	shape := a.Shape()
	shape[0] = end - start
	return &Array{shape: shape, data: append([]float64(nil), a.data[start*inner:end*inner]...)}, nil
}

// Concat joins arrays along the sample axis in argument order.
func Concat(arrays ...*Array) (*Array, error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("ndarray: nothing to concatenate")
	}
	first := arrays[0]
	if first.Rank() == 0 {
		return nil, fmt.Errorf("ndarray: cannot concatenate scalars")
	}
	total, size := 0, 0
	for i, arr := range arrays {
		if !sameTrailing(first.shape, arr.shape) {
			return nil, fmt.Errorf("ndarray: array %d has shape %v, incompatible with %v", i, arr.shape, first.shape)
		}
		total += arr.shape[0]
		size += len(arr.data)
	}
	shape := first.Shape()
	shape[0] = total
	data := make([]float64, 0, size)
	for _, arr := range arrays {
		data = append(data, arr.data...)
	}
	return &Array{shape: shape, data: data}, nil
}

func sameTrailing(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 1; i < len(a); i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Take gathers the given positions of axis into a new array, in indices order.
func (a *Array) Take(axis int, indices []int) (*Array, error) {
	if err := a.checkAxis(axis); err != nil {
		return nil, err
	}
	outer, dim, inner := a.split(axis)
	for _, idx := range indices {
		if idx < 0 || idx >= dim {
			return nil, fmt.Errorf("ndarray: index %d out of range for axis %d of size %d", idx, axis, dim)
		}
	}
	k := len(indices)
	shape := a.Shape()
	shape[axis] = k
	out := make([]float64, outer*k*inner)
	for o := 0; o < outer; o++ {
		for j, idx := range indices {
			src := (o*dim + idx) * inner
			dst := (o*k + j) * inner
			copy(out[dst:dst+inner], a.data[src:src+inner])
		}
	}
	return &Array{shape: shape, data: out}, nil
}

// Put scatters src into the given positions of axis, in place. src must have a's shape
// except along axis, where its size equals len(indices).
func (a *Array) Put(axis int, indices []int, src *Array) error {
	if err := a.checkAxis(axis); err != nil {
		return err
	}
	if src.Rank() != a.Rank() {
		return fmt.Errorf("ndarray: put source rank %d, target rank %d", src.Rank(), a.Rank())
	}
	for i := range a.shape {
		want := a.shape[i]
		if i == axis {
			want = len(indices)
		}
		if src.shape[i] != want {
			return fmt.Errorf("ndarray: put source shape %v does not fit %v on axis %d", src.shape, a.shape, axis)
		}
	}
	outer, dim, inner := a.split(axis)
	for _, idx := range indices {
		if idx < 0 || idx >= dim {
			return fmt.Errorf("ndarray: index %d out of range for axis %d of size %d", idx, axis, dim)
		}
	}
	k := len(indices)
	for o := 0; o < outer; o++ {
		for j, idx := range indices {
			dst := (o*dim + idx) * inner
			s := (o*k + j) * inner
			copy(a.data[dst:dst+inner], src.data[s:s+inner])
		}
	}
	return nil
}

// Reshape returns a copy with a new shape. One dimension may be -1 and is inferred.
func (a *Array) Reshape(shape ...int) (*Array, error) {
	known, wild := 1, -1
	for i, d := range shape {
		switch {
		case d == -1 && wild == -1:
			wild = i
		case d < 0:
			return nil, fmt.Errorf("ndarray: invalid reshape %v", shape)
		default:
			known *= d
		}
	}
	out := append([]int(nil), shape...)
	if wild >= 0 {
		if known == 0 || len(a.data)%known != 0 {
			return nil, fmt.Errorf("ndarray: cannot reshape %v into %v", a.shape, shape)
		}
		out[wild] = len(a.data) / known
	} else if known != len(a.data) {
		return nil, fmt.Errorf("ndarray: cannot reshape %v into %v", a.shape, shape)
	}
	return &Array{shape: out, data: a.Data()}, nil
}

// Flatten2D reshapes to (samples, -1).
func (a *Array) Flatten2D() (*Array, error) {
	if a.Rank() == 0 {
		return nil, fmt.Errorf("ndarray: cannot flatten a scalar")
	}
	n := a.shape[0]
	if n == 0 {
		return nil, fmt.Errorf("ndarray: cannot flatten an empty sample axis")
	}
	return a.Reshape(n, -1)
}

// Dense copies a rank-2 array into a gonum matrix.
func (a *Array) Dense() (*mat.Dense, error) {
	if a.Rank() != 2 {
		return nil, fmt.Errorf("ndarray: Dense needs rank 2, got shape %v", a.shape)
	}
	if a.shape[0] == 0 || a.shape[1] == 0 {
		return nil, fmt.Errorf("ndarray: Dense needs non-empty shape, got %v", a.shape)
	}
	return mat.NewDense(a.shape[0], a.shape[1], a.Data()), nil
}

// FromDense copies a gonum matrix into a rank-2 array.
func FromDense(m mat.Matrix) *Array {
	r, c := m.Dims()
	out := Zeros(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.data[i*c+j] = m.At(i, j)
		}
	}
	return out
}

// EqualApprox reports whether both arrays have the same shape and values within tol.
func (a *Array) EqualApprox(b *Array, tol float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return floats.EqualApprox(a.data, b.data, tol)
}

// Nested returns the values as nested []any slices (a float64 for rank 0).
func (a *Array) Nested() any {
	if len(a.shape) == 0 {
		if len(a.data) == 0 {
			return nil
		}
		return a.data[0]
	}
	v, _ := a.nested(0, 0)
	return v
}

func (a *Array) nested(axis, off int) (any, int) {
	n := a.shape[axis]
	out := make([]any, n)
	if axis == len(a.shape)-1 {
		for i := 0; i < n; i++ {
			out[i] = a.data[off+i]
		}
		return out, off + n
	}
	for i := 0; i < n; i++ {
		out[i], off = a.nested(axis+1, off)
	}
	return out, off
}

// FromNested builds an array from nested slices of numbers, as produced by JSON, YAML
// or mapstructure decoding. Ragged input is rejected.
func FromNested(v any) (*Array, error) {
	w := &walker{rank: -1}
	if err := w.walk(reflect.ValueOf(v), 0); err != nil {
		return nil, err
	}
	if w.rank == -1 {
		w.rank = len(w.shape)
	}
	return &Array{shape: w.shape[:w.rank], data: w.data}, nil
}

type walker struct {
	shape []int
	data  []float64
	rank  int
}

func (w *walker) walk(v reflect.Value, depth int) error {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return fmt.Errorf("ndarray: nil value at depth %d", depth)
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return fmt.Errorf("ndarray: nil value at depth %d", depth)
	}
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		if w.rank != -1 && depth >= w.rank {
			return fmt.Errorf("ndarray: ragged nesting at depth %d", depth)
		}
		n := v.Len()
		if depth < len(w.shape) {
			if w.shape[depth] != n {
				return fmt.Errorf("ndarray: ragged input, axis %d has lengths %d and %d", depth, w.shape[depth], n)
			}
		} else {
			w.shape = append(w.shape, n)
		}
		for i := 0; i < n; i++ {
			if err := w.walk(v.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if w.rank == -1 {
		if depth != len(w.shape) {
			return fmt.Errorf("ndarray: ragged nesting at depth %d", depth)
		}
		w.rank = depth
	} else if depth != w.rank {
		return fmt.Errorf("ndarray: ragged nesting at depth %d", depth)
	}
	f, err := cast.ToFloat64E(v.Interface())
	if err != nil {
		return fmt.Errorf("ndarray: non-numeric value %v: %w", v.Interface(), err)
	}
	w.data = append(w.data, f)
	return nil
}

type wire struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// MarshalJSON encodes the array as {"shape": [...], "data": [...]}.
func (a *Array) MarshalJSON() ([]byte, error) {
	data := a.data
	if data == nil {
		data = []float64{}
	}
	shape := a.shape
	if shape == nil {
		shape = []int{}
	}
	return json.Marshal(wire{Shape: shape, Data: data})
}

// UnmarshalJSON decodes the {"shape", "data"} form.
func (a *Array) UnmarshalJSON(b []byte) error {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	arr, err := New(w.Shape, w.Data)
	if err != nil {
		return err
	}
	*a = *arr
	return nil
}
