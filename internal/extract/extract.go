// Package extract parses experiment directory names into typed parameter
// records. Parsing is table driven: each objective family contributes one
// pattern, and new families are added by extending the table.
package extract

import (
	"regexp"
	"strconv"
	"time"

	"github.com/optkit/expreg/internal/types"
)

// ObjectiveAuto asks Extract to detect the objective family from the name.
const ObjectiveAuto = "auto"

// ObjectiveUnknown is reported when no family prefix matches.
const ObjectiveUnknown = "unknown"

// nameTimestampLayout is the trailing timestamp in directory names.
const nameTimestampLayout = "20060102_150405"

// familyPattern binds an objective family to its directory-name grammar.
// Capture groups, in order: GN, degMin, degMax, domain, seed (optional),
// timestamp.
type familyPattern struct {
	family   string
	prefixes []string
	re       *regexp.Regexp
}

const paramsBody = `GN(\d+)_deg(\d+)-(\d+)_(?:dom|domain)(\d+(?:\.\d+)?(?:[eE][+-]?\d+)?)(?:_seed(\d+|random))?_(\d{8}_\d{6})$`

// patterns is evaluated in declaration order when the family is unknown.
var patterns = []familyPattern{
	{
		family:   "lotka_volterra_4d",
		prefixes: []string{"lv4d_"},
		re:       regexp.MustCompile(`^lv4d_` + paramsBody),
	},
	{
		family:   "deuflhard",
		prefixes: []string{"deuflhard_"},
		re:       regexp.MustCompile(`^deuflhard_` + paramsBody),
	},
	{
		family:   "fitzhugh_nagumo",
		prefixes: []string{"fhn_", "fitzhugh_"},
		re:       regexp.MustCompile(`^(?:fhn|fitzhugh)_` + paramsBody),
	},
}

// Family detects the objective family from a directory name prefix.
// Returns ObjectiveUnknown when no known prefix matches.
func Family(name string) string {
	for _, p := range patterns {
		for _, prefix := range p.prefixes {
			if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
				return p.family
			}
		}
	}
	return ObjectiveUnknown
}

// Extract parses a directory name into experiment parameters. The hint
// selects a family directly; ObjectiveAuto (or "") detects it from the
// name prefix. An unknown family tries every pattern in table order.
//
// Extract is pure and total: it never fails with an error, it just
// reports no match.
func Extract(name, hint string) (*types.ExperimentParams, bool) {
	family := hint
	if family == "" || family == ObjectiveAuto {
		family = Family(name)
	}

	for _, p := range patterns {
		if family != ObjectiveUnknown && p.family != family {
			continue
		}
		if params, ok := tryPattern(p, name); ok {
			return params, true
		}
	}
	return nil, false
}

// tryPattern applies one family pattern. Any capture group that fails to
// parse to its expected type fails the whole match; there is no partial
// success.
func tryPattern(p familyPattern, name string) (*types.ExperimentParams, bool) {
	m := p.re.FindStringSubmatch(name)
	if m == nil {
		return nil, false
	}

	gn, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, false
	}
	degMin, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, false
	}
	degMax, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, false
	}
	domain, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return nil, false
	}

	var seed *types.Seed
	if m[5] != "" {
		if m[5] == "random" {
			seed = &types.Seed{Random: true}
		} else {
			v, err := strconv.ParseInt(m[5], 10, 64)
			if err != nil {
				return nil, false
			}
			seed = &types.Seed{Value: v}
		}
	}

	ts, err := time.Parse(nameTimestampLayout, m[6])
	if err != nil {
		return nil, false
	}

	return &types.ExperimentParams{
		GN:        gn,
		DegMin:    degMin,
		DegMax:    degMax,
		Domain:    domain,
		Seed:      seed,
		Basis:     types.DefaultBasis,
		Timestamp: &ts,
		Objective: p.family,
	}, true
}
