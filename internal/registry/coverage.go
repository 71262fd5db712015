package registry

import (
	"sort"

	"github.com/optkit/expreg/internal/types"
)

// DegreeRange is an inclusive polynomial degree range.
type DegreeRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// ParameterCoverage is the coverage matrix over the registry: unique
// parameter values per dimension and a dense count matrix indexed by
// [GN][domain], independent of degree range and seed. Derived on demand,
// never persisted.
type ParameterCoverage struct {
	GNs          []int
	Domains      []float64
	DegreeRanges []DegreeRange
	Counts       [][]int
}

// ComputeCoverage builds the coverage matrix from the current entries.
// Pure function of Entries; entries without params do not contribute.
func (r *Registry) ComputeCoverage() *ParameterCoverage {
	gnSet := make(map[int]struct{})
	domainSet := make(map[string]float64)
	degSet := make(map[DegreeRange]struct{})

	for _, e := range r.Entries {
		if e.Params == nil {
			continue
		}
		gnSet[e.Params.GN] = struct{}{}
		domainSet[types.DomainKey(e.Params.Domain)] = e.Params.Domain
		degSet[DegreeRange{Min: e.Params.DegMin, Max: e.Params.DegMax}] = struct{}{}
	}

	cov := &ParameterCoverage{
		GNs:          make([]int, 0, len(gnSet)),
		Domains:      make([]float64, 0, len(domainSet)),
		DegreeRanges: make([]DegreeRange, 0, len(degSet)),
	}
	for gn := range gnSet {
		cov.GNs = append(cov.GNs, gn)
	}
	sort.Ints(cov.GNs)
	for _, d := range domainSet {
		cov.Domains = append(cov.Domains, d)
	}
	sort.Float64s(cov.Domains)
	for dr := range degSet {
		cov.DegreeRanges = append(cov.DegreeRanges, dr)
	}
	sort.Slice(cov.DegreeRanges, func(i, j int) bool {
		if cov.DegreeRanges[i].Min != cov.DegreeRanges[j].Min {
			return cov.DegreeRanges[i].Min < cov.DegreeRanges[j].Min
		}
		return cov.DegreeRanges[i].Max < cov.DegreeRanges[j].Max
	})

	gnIndex := make(map[int]int, len(cov.GNs))
	for i, gn := range cov.GNs {
		gnIndex[gn] = i
	}
	domainIndex := make(map[string]int, len(cov.Domains))
	for i, d := range cov.Domains {
		domainIndex[types.DomainKey(d)] = i
	}

	cov.Counts = make([][]int, len(cov.GNs))
	for i := range cov.Counts {
		cov.Counts[i] = make([]int, len(cov.Domains))
	}
	for _, e := range r.Entries {
		if e.Params == nil {
			continue
		}
		gi := gnIndex[e.Params.GN]
		di := domainIndex[types.DomainKey(e.Params.Domain)]
		cov.Counts[gi][di]++
	}
	return cov
}

// MissingCombo identifies an untested parameter combination.
type MissingCombo struct {
	GN     int
	Domain float64
	DegMin int
	DegMax int
}

// FindMissing reports every combination from the Cartesian product of the
// target sets for which no experiment exists (existence, not count).
func (r *Registry) FindMissing(gns []int, domains []float64, degreeRanges []DegreeRange) []MissingCombo {
	var missing []MissingCombo
	for _, gn := range gns {
		for _, domain := range domains {
			for _, dr := range degreeRanges {
				if len(r.GetByExactParams(gn, dr.Min, dr.Max, domain)) == 0 {
					missing = append(missing, MissingCombo{GN: gn, Domain: domain, DegMin: dr.Min, DegMax: dr.Max})
				}
			}
		}
	}
	return missing
}
