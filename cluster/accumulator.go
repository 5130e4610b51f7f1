package cluster

import (
	"fmt"
	"sort"
)

// AccumulatorKind enumerates the statistics a pyramid can carry.
type AccumulatorKind int

const (
	// ThresholdCount counts points whose attribute is greater than Threshold.
	ThresholdCount AccumulatorKind = iota
	// AttributeCount counts points that carry an attribute.
	AttributeCount
	AttributeSum
	AttributeMin
	AttributeMax
)

var kindNames = map[AccumulatorKind]string{
	ThresholdCount: "threshold_count",
	AttributeCount: "attribute_count",
	AttributeSum:   "attribute_sum",
	AttributeMin:   "attribute_min",
	AttributeMax:   "attribute_max",
}

func (k AccumulatorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("AccumulatorKind(%d)", int(k))
}

// ParseAccumulatorKind accepts the names printed by String.
func ParseAccumulatorKind(s string) (AccumulatorKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown accumulator kind %q", ErrConfiguration, s)
}

// Statistic is one accumulated value. Set is false when no descendant point
// contributed, which only happens for min and max.
type Statistic struct {
	Value int64
	Set   bool
}

// Accumulator computes one statistic bottom-up: Init per point, Merge when
// nodes combine. Merge is associative and commutative.
type Accumulator struct {
	Kind      AccumulatorKind
	Threshold int64
}

func (a Accumulator) Init(p Point) Statistic {
	switch a.Kind {
	case ThresholdCount:
		if p.Attribute != nil && *p.Attribute > a.Threshold {
			return Statistic{Value: 1, Set: true}
		}
		return Statistic{Set: true}
	case AttributeCount:
		if p.Attribute != nil {
			return Statistic{Value: 1, Set: true}
		}
		return Statistic{Set: true}
	case AttributeSum:
		if p.Attribute != nil {
			return Statistic{Value: *p.Attribute, Set: true}
		}
		return Statistic{Set: true}
	case AttributeMin, AttributeMax:
		if p.Attribute != nil {
			return Statistic{Value: *p.Attribute, Set: true}
		}
	}
	return Statistic{}
}

func (a Accumulator) Merge(x, y Statistic) Statistic {
	if !x.Set {
		return y
	}
	if !y.Set {
		return x
	}
	switch a.Kind {
	case AttributeMin:
		return Statistic{Value: min(x.Value, y.Value), Set: true}
	case AttributeMax:
		return Statistic{Value: max(x.Value, y.Value), Set: true}
	}
	return Statistic{Value: x.Value + y.Value, Set: true}
}

// Registry maps accumulator names to accumulators.
type Registry map[string]Accumulator

// DefaultRegistry holds the threshold_counter accumulator, counting points
// whose attribute exceeds 10.
func DefaultRegistry() Registry {
	return Registry{
		"threshold_counter": {Kind: ThresholdCount, Threshold: 10},
	}
}

// namedAccumulator is a registry entry resolved for one build.
type namedAccumulator struct {
	name string
	acc  Accumulator
}

// resolve returns the registered accumulators among names, in the order
// given, skipping unknown names and duplicates. With no names every
// registered accumulator is used, sorted by name.
func (r Registry) resolve(names []string) []namedAccumulator {
	if len(names) == 0 {
		for name := range r {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	seen := make(map[string]bool, len(names))
	var out []namedAccumulator
	for _, name := range names {
		acc, ok := r[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, namedAccumulator{name: name, acc: acc})
	}
	return out
}
