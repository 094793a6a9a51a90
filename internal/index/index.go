// Package index answers "who is this" queries over a loaded encoding table
// with an in-memory HNSW graph.
package index

import (
	"sort"

	"github.com/andresmejia3/faceid/internal/match"
	"github.com/andresmejia3/faceid/internal/store"
	"github.com/andresmejia3/faceid/internal/types"
	"github.com/coder/hnsw"
)

// MaxNeighbors is the HNSW M parameter.
const MaxNeighbors = 16

const nearestCandidates = 8

// Hit is one search result.
type Hit struct {
	Name     string
	Distance float64
	// Row is the position of the record in the source table.
	Row int
}

// Index is an immutable HNSW graph over one table. Graph keys are row
// positions, so equal distances resolve to the earliest row.
type Index struct {
	graph   *hnsw.Graph[int]
	table   store.Table
	dims    int
	skipped int
}

// Build indexes every record sharing the dimension of the first non-empty one.
// Records of another dimension cannot be compared and are left out.
func Build(table store.Table) *Index {
	g := hnsw.NewGraph[int]()
	g.M = MaxNeighbors
	g.Ml = 1.0 / float64(MaxNeighbors)
	g.Distance = hnsw.EuclideanDistance

	idx := &Index{graph: g, table: table}
	for i, rec := range table {
		if len(rec.Encoding) == 0 {
			idx.skipped++
			continue
		}
		if idx.dims == 0 {
			idx.dims = len(rec.Encoding)
		}
		if len(rec.Encoding) != idx.dims {
			idx.skipped++
			continue
		}
		g.Add(hnsw.MakeNode(i, rec.Encoding.Float32()))
	}
	return idx
}

// Len returns the number of indexed records.
func (x *Index) Len() int {
	return x.graph.Len()
}

// Dims returns the indexed dimension, 0 for an empty index.
func (x *Index) Dims() int {
	return x.dims
}

// Skipped returns how many records were left out of the graph.
func (x *Index) Skipped() int {
	return x.skipped
}

// Search returns up to k hits ordered by distance, then by row.
func (x *Index) Search(query types.Encoding, k int) []Hit {
	if k <= 0 || x.graph.Len() == 0 || len(query) != x.dims {
		return nil
	}

	nodes := x.graph.Search(query.Float32(), k)
	hits := make([]Hit, 0, len(nodes))
	for _, n := range nodes {
		rec := x.table[n.Key]
		hits = append(hits, Hit{
			Name:     rec.Name,
			Distance: match.Distance(query, rec.Encoding),
			Row:      n.Key,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Row < hits[j].Row
	})
	return hits
}

// Nearest returns the closest hit within threshold. A few extra candidates
// are fetched so that exact duplicates resolve to the earliest row.
func (x *Index) Nearest(query types.Encoding, threshold float64) (Hit, bool) {
	hits := x.Search(query, nearestCandidates)
	if len(hits) == 0 || hits[0].Distance > threshold {
		return Hit{}, false
	}
	return hits[0], true
}
