package orchestrator

import (
	"strings"

	"github.com/optkit/expreg/internal/extract"
)

// Experiment kinds route entries to analysis collaborators. Kind is
// coarser than the objective family: every recognized family currently
// maps to parameter recovery, and anything else falls through to the
// generic collaborator.
const (
	KindParameterRecovery = "parameter_recovery"
	KindLandscape         = "landscape"
	KindGeneric           = "generic"
)

// DetectKind classifies an experiment by its directory name.
func DetectKind(name string) string {
	if strings.Contains(name, "landscape") {
		return KindLandscape
	}
	if extract.Family(name) != extract.ObjectiveUnknown {
		return KindParameterRecovery
	}
	return KindGeneric
}
