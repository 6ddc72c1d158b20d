package catalog

import "sort"

// CostTier ranks backends by spend. Ordering matters: selection compares
// tiers numerically.
type CostTier int

const (
	TierBudget CostTier = iota
	TierStandard
	TierPremium
)

func (t CostTier) String() string {
	switch t {
	case TierBudget:
		return "budget"
	case TierStandard:
		return "standard"
	case TierPremium:
		return "premium"
	}
	return "unknown"
}

// Backend is an immutable catalog entry for a generation model. Entries are
// created once at process start and never mutated.
type Backend struct {
	ID           string
	Name         string
	PerSecondUSD float64
	// MaxSeconds is the longest single call the backend accepts. Longer
	// requests are capped (or chunked by callers that render in parts).
	MaxSeconds int
	Tier       CostTier
	Tags       []string
	// ProviderName is the model identifier on the provider's wire.
	ProviderName string
}

// HasTag reports whether the backend advertises the capability tag.
func (b Backend) HasTag(tag string) bool {
	for _, t := range b.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// DefaultBackendID is the hard-coded fallback used when a format has no
// route; generation must never block on a missing table entry.
const DefaultBackendID = "kling-std"

var backendTable = []Backend{
	{
		ID:           "pixverse-lite",
		Name:         "PixVerse v3.5 Lite",
		PerSecondUSD: 0.04,
		MaxSeconds:   8,
		Tier:         TierBudget,
		Tags:         []string{"general"},
		ProviderName: "pixverse/v3.5-lite",
	},
	{
		ID:           "kling-std",
		Name:         "Kling v1.6 Standard",
		PerSecondUSD: 0.07,
		MaxSeconds:   10,
		Tier:         TierStandard,
		Tags:         []string{"general", "motion"},
		ProviderName: "kling/v1.6-standard",
	},
	{
		ID:           "runway-gen3",
		Name:         "Runway Gen-3 Turbo",
		PerSecondUSD: 0.25,
		MaxSeconds:   10,
		Tier:         TierStandard,
		Tags:         []string{"text", "legibility"},
		ProviderName: "runway/gen3-turbo",
	},
	{
		ID:           "kling-pro",
		Name:         "Kling v1.6 Pro",
		PerSecondUSD: 0.49,
		MaxSeconds:   10,
		Tier:         TierPremium,
		Tags:         []string{"hands", "motion", "detail"},
		ProviderName: "kling/v1.6-pro",
	},
	{
		ID:           "veo-2",
		Name:         "Google Veo 2",
		PerSecondUSD: 0.50,
		MaxSeconds:   8,
		Tier:         TierPremium,
		Tags:         []string{"hands", "text", "detail"},
		ProviderName: "google/veo-2",
	},
}

// Catalog is the process-wide registry of generation backends.
type Catalog struct {
	byID    map[string]Backend
	ordered []Backend
}

// NewCatalog builds the registry from the static backend table.
func NewCatalog() *Catalog {
	c := &Catalog{byID: make(map[string]Backend, len(backendTable))}
	for _, b := range backendTable {
		c.byID[b.ID] = b
	}
	c.ordered = append(c.ordered, backendTable...)
	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].ID < c.ordered[j].ID })
	return c
}

// ByID looks up a backend by identifier.
func (c *Catalog) ByID(id string) (Backend, bool) {
	b, ok := c.byID[id]
	return b, ok
}

// Default returns the fallback backend.
func (c *Catalog) Default() Backend {
	return c.byID[DefaultBackendID]
}

// All returns the catalog entries in stable ID order.
func (c *Catalog) All() []Backend {
	out := make([]Backend, len(c.ordered))
	copy(out, c.ordered)
	return out
}
