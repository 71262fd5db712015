package types

import (
	"fmt"
	"strconv"
	"time"
)

// ExperimentParams holds the structural parameters of a single experiment
// run, extracted from its directory name. Immutable once constructed.
type ExperimentParams struct {
	GN        int        `json:"GN"`      // grid resolution
	DegMin    int        `json:"deg_min"` // polynomial degree range, DegMin <= DegMax
	DegMax    int        `json:"deg_max"`
	Domain    float64    `json:"domain"` // half-width of the search domain, > 0
	Seed      *Seed      `json:"seed"`
	Basis     string     `json:"basis"`
	Timestamp *time.Time `json:"timestamp"`
	Objective string     `json:"objective"` // family identifier, "unknown" if undetected
}

// DefaultBasis is used when a directory name does not encode a basis.
const DefaultBasis = "chebyshev"

// Validate checks if the params have valid field values
func (p *ExperimentParams) Validate() error {
	if p.GN <= 0 {
		return fmt.Errorf("GN must be positive (got %d)", p.GN)
	}
	if p.DegMin > p.DegMax {
		return fmt.Errorf("deg_min must not exceed deg_max (got %d-%d)", p.DegMin, p.DegMax)
	}
	if p.Domain <= 0 {
		return fmt.Errorf("domain must be positive (got %g)", p.Domain)
	}
	return nil
}

// Hash returns the parameter-cell hash for these params.
func (p *ExperimentParams) Hash() string {
	return ComputeHash(p.GN, p.DegMin, p.DegMax, p.Domain)
}

// ComputeHash derives the canonical parameter-cell key from the four
// dimensions that define a cell. Seed, basis, timestamp and objective do
// not participate: multiple runs of the same cell share a hash.
//
// The domain is rendered in 6-digit scientific notation so that values
// surviving a JSON round trip still map to the same cell.
func ComputeHash(gn, degMin, degMax int, domain float64) string {
	return fmt.Sprintf("GN%d_deg%d-%d_dom%s", gn, degMin, degMax, DomainKey(domain))
}

// DomainKey renders a domain value the way the hash and the domain index
// key it: 6-digit scientific notation.
func DomainKey(domain float64) string {
	return fmt.Sprintf("%.6e", domain)
}

// Seed is an experiment seed: either a concrete integer or the literal
// "random" token from the directory name.
type Seed struct {
	Random bool
	Value  int64
}

// String renders the seed the way directory names spell it.
func (s Seed) String() string {
	if s.Random {
		return "random"
	}
	return strconv.FormatInt(s.Value, 10)
}

// MarshalJSON encodes a concrete seed as a JSON number and a random seed
// as the string "random".
func (s Seed) MarshalJSON() ([]byte, error) {
	if s.Random {
		return []byte(`"random"`), nil
	}
	return []byte(strconv.FormatInt(s.Value, 10)), nil
}

// UnmarshalJSON accepts either a JSON number or the string "random".
func (s *Seed) UnmarshalJSON(data []byte) error {
	text := string(data)
	if text == `"random"` {
		s.Random = true
		s.Value = 0
		return nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid seed %s: %w", text, err)
	}
	s.Random = false
	s.Value = v
	return nil
}

// Status represents the lifecycle state of an experiment entry.
//
// Persisted as its integer ordinal; the ordinal values are part of the
// registry file format and must not be renumbered.
type Status int

const (
	StatusDiscovered Status = 0 // found on disk, not yet analyzed
	StatusAnalyzing  Status = 1 // analysis in flight
	StatusAnalyzed   Status = 2 // analysis succeeded (terminal)
	StatusFailed     Status = 3 // analysis failed (terminal)
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusDiscovered, StatusAnalyzing, StatusAnalyzed, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no forward transition leaves this status.
func (s Status) IsTerminal() bool {
	return s == StatusAnalyzed || s == StatusFailed
}

// ValidTransitions defines the forward transitions of the lifecycle
// state machine:
//
//	discovered → analyzing → analyzed
//	                  ↓
//	                failed
//
// There is no built-in transition out of failed; operator recovery goes
// through an explicit requeue (see registry.Requeue).
func (s Status) ValidTransitions() []Status {
	switch s {
	case StatusDiscovered:
		return []Status{StatusAnalyzing}
	case StatusAnalyzing:
		return []Status{StatusAnalyzed, StatusFailed}
	default:
		return []Status{}
	}
}

// CanTransitionTo checks if a transition from this status to the target is valid
func (s Status) CanTransitionTo(target Status) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// String returns the human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusDiscovered:
		return "discovered"
	case StatusAnalyzing:
		return "analyzing"
	case StatusAnalyzed:
		return "analyzed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ExperimentEntry is one tracked experiment run. Path is the primary key;
// Status and AnalyzedAt are mutated by the orchestrator, everything else
// is fixed at creation.
type ExperimentEntry struct {
	Path         string            `json:"path"`
	Name         string            `json:"name"`
	DiscoveredAt time.Time         `json:"discovered_at"`
	CompletedAt  *time.Time        `json:"completed_at"`
	AnalyzedAt   *time.Time        `json:"analyzed_at"`
	Status       Status            `json:"status"`
	Params       *ExperimentParams `json:"params"`
	ParamsHash   string            `json:"params_hash"`
}

// Validate checks if the entry has valid field values
func (e *ExperimentEntry) Validate() error {
	if e.Path == "" {
		return fmt.Errorf("path is required")
	}
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("invalid status: %d", int(e.Status))
	}
	if e.Params != nil {
		if err := e.Params.Validate(); err != nil {
			return fmt.Errorf("invalid params: %w", err)
		}
		if e.ParamsHash != e.Params.Hash() {
			return fmt.Errorf("params_hash %q does not match params (want %q)", e.ParamsHash, e.Params.Hash())
		}
	} else if e.ParamsHash != "" {
		return fmt.Errorf("params_hash must be empty when params are absent (got %q)", e.ParamsHash)
	}
	return nil
}

// SortKey is the queue ordering key: completion time when known, discovery
// time otherwise. Pending work is processed oldest first.
func (e *ExperimentEntry) SortKey() time.Time {
	if e.CompletedAt != nil {
		return *e.CompletedAt
	}
	return e.DiscoveredAt
}
