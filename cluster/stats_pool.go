package cluster

import (
	"strconv"
	"strings"
)

// StatisticsPool interns the statistics vectors of all nodes in a pyramid.
// Singletons carried up through the levels, and most small clusters, share
// entries instead of holding their own copy.
//
// Only the builder adds to a pool. Once Finish returns the pool is read-only
// and Get may be called from any number of goroutines.
type StatisticsPool struct {
	Vectors [][]Statistic
	Lookup  map[string]uint32
}

func NewStatisticsPool() *StatisticsPool {
	return &StatisticsPool{
		Vectors: make([][]Statistic, 0),
		Lookup:  make(map[string]uint32),
	}
}

func statisticsKey(stats []Statistic) string {
	var b strings.Builder
	for _, s := range stats {
		if s.Set {
			b.WriteString(strconv.FormatInt(s.Value, 10))
		} else {
			b.WriteByte('-')
		}
		b.WriteByte(';')
	}
	return b.String()
}

// Add interns stats and returns its index.
func (p *StatisticsPool) Add(stats []Statistic) uint32 {
	key := statisticsKey(stats)
	if idx, exists := p.Lookup[key]; exists {
		return idx
	}
	idx := uint32(len(p.Vectors))
	owned := make([]Statistic, len(stats))
	copy(owned, stats)
	p.Vectors = append(p.Vectors, owned)
	p.Lookup[key] = idx
	return idx
}

// Get returns the vector at idx, or nil when idx is out of range.
func (p *StatisticsPool) Get(idx uint32) []Statistic {
	if int(idx) >= len(p.Vectors) {
		return nil
	}
	return p.Vectors[idx]
}

func (p *StatisticsPool) Len() int {
	return len(p.Vectors)
}
