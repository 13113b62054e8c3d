package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
)

// Seed fixes every source of randomness in training so reruns on the same
// data produce identical artifacts.
const Seed = 42

// Random streams. Forest trees use streams 1..NumTrees.
const (
	splitStream  uint64 = 0
	lstmStream   uint64 = 1 << 32
	sampleStream uint64 = 2 << 32
)

// newRand returns a deterministic generator for a stream derived from Seed.
func newRand(stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(Seed, stream))
}

// Sample returns up to limit elements picked by a seeded shuffle. The input
// must already be in a stable order for the pick to be reproducible. A
// non-positive limit keeps everything.
func Sample[T any](rows []T, limit int) []T {
	if limit <= 0 || limit >= len(rows) {
		return rows
	}
	out := append([]T(nil), rows...)
	rng := newRand(sampleStream)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:limit]
}

// Dataset is a dense feature matrix with binary labels.
type Dataset struct {
	Columns []string
	X       [][]float64
	Y       []int
}

// FromRows builds a Dataset in FeatureColumns order.
func FromRows(rows []domain.LabeledRow) Dataset {
	ds := Dataset{
		Columns: append([]string(nil), domain.FeatureColumns...),
		X:       make([][]float64, len(rows)),
		Y:       make([]int, len(rows)),
	}
	for i, r := range rows {
		ds.X[i] = r.Features()
		ds.Y[i] = r.FloodLabel
	}
	return ds
}

// Len returns the number of rows.
func (d Dataset) Len() int { return len(d.Y) }

// Subset returns the rows at idx, sharing the underlying feature slices.
func (d Dataset) Subset(idx []int) Dataset {
	out := Dataset{Columns: d.Columns, X: make([][]float64, len(idx)), Y: make([]int, len(idx))}
	for i, j := range idx {
		out.X[i] = d.X[j]
		out.Y[i] = d.Y[j]
	}
	return out
}

// Positives counts rows labeled 1.
func (d Dataset) Positives() int {
	n := 0
	for _, v := range d.Y {
		n += v
	}
	return n
}

// Fingerprint hashes columns, features and labels. Two datasets with the same
// fingerprint train identical artifacts.
func (d Dataset) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(strings.Join(d.Columns, ",")))
	var buf [8]byte
	for i, row := range d.X {
		for _, v := range row {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
		buf[0] = byte(d.Y[i])
		h.Write(buf[:1])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Split is a train/test partition by row index.
type Split struct {
	Train      []int
	Test       []int
	Stratified bool
}

// ErrTooFewRows means the dataset cannot be split into non-empty halves.
var ErrTooFewRows = errors.New("too few rows to split")

// StratifiedSplit holds out ceil(testFraction*n) rows, preserving the class
// ratio when every class has at least two members. Otherwise it falls back to
// a plain shuffled split and reports Stratified=false.
func StratifiedSplit(y []int, testFraction float64) (Split, error) {
	n := len(y)
	nTest := int(math.Ceil(testFraction * float64(n)))
	if n < 2 || nTest < 1 || nTest >= n {
		return Split{}, fmt.Errorf("%w: %d rows at test fraction %.2f", ErrTooFewRows, n, testFraction)
	}
	rng := newRand(splitStream)

	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	// Every class keeps at least one training row.
	stratify := len(byClass) > 1 && nTest <= n-len(byClass)
	for _, members := range byClass {
		if len(members) < 2 {
			stratify = false
		}
	}

	var split Split
	if !stratify {
		perm := rng.Perm(n)
		split = Split{Test: perm[:nTest], Train: perm[nTest:]}
	} else {
		split = stratified(byClass, n, nTest, rng)
	}
	sort.Ints(split.Train)
	sort.Ints(split.Test)
	return split, nil
}

func stratified(byClass map[int][]int, n, nTest int, rng *rand.Rand) Split {
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	// Largest-remainder allocation of the test quota across classes.
	alloc := make(map[int]int, len(classes))
	type rem struct {
		class int
		frac  float64
	}
	var rems []rem
	assigned := 0
	for _, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		whole := int(math.Floor(exact))
		alloc[c] = whole
		assigned += whole
		rems = append(rems, rem{c, exact - float64(whole)})
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < nTest; i++ {
		c := rems[i%len(rems)].class
		if alloc[c] < len(byClass[c])-1 {
			alloc[c]++
			assigned++
		}
	}

	split := Split{Stratified: true}
	for _, c := range classes {
		members := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		split.Test = append(split.Test, members[:alloc[c]]...)
		split.Train = append(split.Train, members[alloc[c]:]...)
	}
	return split
}
