package model

import "sort"

// leaf marks a terminal node in Node.Feature.
const leaf = -1

// Node is one decision tree node. Internal nodes send rows with
// x[Feature] <= Threshold to Left. Leaves carry Value.
type Node struct {
	Feature   int     `msgpack:"f"`
	Threshold float64 `msgpack:"t"`
	Left      int     `msgpack:"l"`
	Right     int     `msgpack:"r"`
	Value     float64 `msgpack:"v"`
}

// Tree is a binary tree stored as a flat node slice rooted at index 0.
type Tree struct {
	Nodes []Node `msgpack:"nodes"`
}

// Eval walks x to a leaf and returns its value.
func (t *Tree) Eval(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature == leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature == leaf {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

func (t *Tree) addLeaf(value float64) int {
	t.Nodes = append(t.Nodes, Node{Feature: leaf, Left: leaf, Right: leaf, Value: value})
	return len(t.Nodes) - 1
}

// addSplit appends an internal node whose children are filled in later.
func (t *Tree) addSplit(feature int, threshold float64) int {
	t.Nodes = append(t.Nodes, Node{Feature: feature, Threshold: threshold, Left: leaf, Right: leaf})
	return len(t.Nodes) - 1
}

// sortByFeature orders idx by column f of X.
func sortByFeature(X [][]float64, idx []int, f int) {
	sort.Slice(idx, func(a, b int) bool { return X[idx[a]][f] < X[idx[b]][f] })
}

// partition splits idx in place around threshold on column f and returns
// the boundary.
func partition(X [][]float64, idx []int, f int, threshold float64) int {
	lo, hi := 0, len(idx)-1
	for lo <= hi {
		if X[idx[lo]][f] <= threshold {
			lo++
		} else {
			idx[lo], idx[hi] = idx[hi], idx[lo]
			hi--
		}
	}
	return lo
}
