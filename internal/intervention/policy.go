package intervention

import (
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// Policy chooses which intervention answers an alert.
// lastUsed maps each kind to when it was last started (absent means never).
type Policy interface {
	Select(alert types.Alert, level float64, lastUsed map[types.InterventionKind]time.Time) (types.InterventionKind, bool)
}

// SeverityMatchPolicy picks the catalog entry with the highest target severity
// that does not exceed the alert's effective severity and addresses the alert's
// metric. Ties go to the least recently used kind, then catalog order.
//
// When the adaptation level is below AggressiveBelow, past interventions have
// mostly failed, so the effective severity is raised one step.
type SeverityMatchPolicy struct {
	Catalog         []CatalogEntry
	AggressiveBelow float64
}

// NewSeverityMatchPolicy creates the default policy over a catalog
func NewSeverityMatchPolicy(catalog []CatalogEntry, aggressiveBelow float64) *SeverityMatchPolicy {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &SeverityMatchPolicy{Catalog: catalog, AggressiveBelow: aggressiveBelow}
}

// Select implements Policy
func (p *SeverityMatchPolicy) Select(alert types.Alert, level float64, lastUsed map[types.InterventionKind]time.Time) (types.InterventionKind, bool) {
	effective := alert.Severity
	if level < p.AggressiveBelow {
		effective = effective.Escalate()
	}
	group := GroupFor(alert.Metric)

	var best *CatalogEntry
	for i := range p.Catalog {
		entry := &p.Catalog[i]
		if entry.TargetSeverity.Rank() > effective.Rank() || !entry.Matches(group) {
			continue
		}
		if best == nil {
			best = entry
			continue
		}
		switch {
		case entry.TargetSeverity.Rank() > best.TargetSeverity.Rank():
			best = entry
		case entry.TargetSeverity.Rank() == best.TargetSeverity.Rank() &&
			lastUsed[entry.Kind].Before(lastUsed[best.Kind]):
			best = entry
		}
	}
	if best == nil {
		return "", false
	}
	return best.Kind, true
}
