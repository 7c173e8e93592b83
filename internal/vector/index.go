// Package vector provides a flat L2 vector index, its on-disk format, and a
// generation store that publishes index and chunk files together.
package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/vishalkoriyalearning/rag-serve/pkg/utils"
)

var (
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyMatrix is returned when building an index from zero vectors.
	ErrEmptyMatrix = errors.New("cannot build index from an empty matrix")
)

// FlatIndex is an exhaustive nearest-neighbour index over squared Euclidean
// distance. Vectors are stored row-major in insertion order; row i is
// position i. A FlatIndex is immutable after Build and safe for concurrent use.
type FlatIndex struct {
	dim  int
	n    int
	data []float32
}

// Hit is one search result: a row position and its squared L2 distance to the query.
type Hit struct {
	Position int
	Distance float32
}

// Dim returns the column count of matrix, or 0 for a matrix with no rows.
func Dim(matrix [][]float32) int {
	if len(matrix) == 0 {
		return 0
	}
	return len(matrix[0])
}

// Build constructs an index holding the rows of matrix in input order.
func Build(matrix [][]float32) (*FlatIndex, error) {
	dim := Dim(matrix)
	if dim == 0 {
		return nil, ErrEmptyMatrix
	}
	data := make([]float32, 0, len(matrix)*dim)
	for i, row := range matrix {
		if len(row) != dim {
			return nil, fmt.Errorf("row %d: %w: got %d, expected %d", i, ErrDimensionMismatch, len(row), dim)
		}
		data = append(data, row...)
	}
	return &FlatIndex{dim: dim, n: len(matrix), data: data}, nil
}

// Dimensions returns the vector dimension.
func (x *FlatIndex) Dimensions() int {
	return x.dim
}

// Len returns the number of stored vectors.
func (x *FlatIndex) Len() int {
	return x.n
}

// Vector returns a copy of row i.
func (x *FlatIndex) Vector(i int) []float32 {
	out := make([]float32, x.dim)
	copy(out, x.row(i))
	return out
}

func (x *FlatIndex) row(i int) []float32 {
	return x.data[i*x.dim : (i+1)*x.dim]
}

// Search returns the min(k, Len()) nearest rows ordered by ascending distance.
// Ties keep row order. k <= 0 yields no hits.
func (x *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("query: %w: got %d, expected %d", ErrDimensionMismatch, len(query), x.dim)
	}
	if k <= 0 {
		return []Hit{}, nil
	}
	hits := make([]Hit, x.n)
	for i := 0; i < x.n; i++ {
		hits[i] = Hit{Position: i, Distance: utils.SquaredL2(query, x.row(i))}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Save writes the index to path. Format (little-endian): dimension uint32,
// count uint32, then count*dimension float32 values row-major.
func (x *FlatIndex) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := writeIndex(w, x); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync index file: %w", err)
	}
	return f.Close()
}

func writeIndex(w io.Writer, x *FlatIndex) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(x.dim)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(x.n)); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	buf := make([]byte, 4)
	for _, v := range x.data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write vector data: %w", err)
		}
	}
	return nil
}

// LoadIndex reads an index written by Save. A missing file is not an error:
// it returns found=false.
func LoadIndex(path string) (idx *FlatIndex, found bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, false, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, false, fmt.Errorf("read count: %w", err)
	}
	if dim == 0 || n == 0 {
		return nil, false, fmt.Errorf("corrupt index file %s: dimension %d, count %d", path, dim, n)
	}
	raw := make([]byte, int(dim)*int(n)*4)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, false, fmt.Errorf("read vector data: %w", err)
	}
	data := make([]float32, int(dim)*int(n))
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return &FlatIndex{dim: int(dim), n: int(n), data: data}, true, nil
}
