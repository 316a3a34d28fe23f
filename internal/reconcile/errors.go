package reconcile

import (
	"fmt"
	"strings"
)

// AmbiguityError records a change that matched more than one existing
// card with equal plausibility. The tie is always broken
// deterministically and the resolution logged; the error value exists
// for the audit trail, it never aborts a run.
type AmbiguityError struct {
	CommitHash string
	CardIDs    []string
	ChosenID   string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("change %s matched cards [%s] with equal similarity; chose %s by most recent activity",
		e.CommitHash, strings.Join(e.CardIDs, ", "), e.ChosenID)
}
