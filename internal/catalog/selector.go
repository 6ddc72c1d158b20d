package catalog

import (
	"github.com/rs/zerolog"

	"reelgen/internal/domain"
)

// Selector maps (format, risk, tier) to a single backend. It is pure over
// the static catalog and its inputs; unmapped formats are logged and
// resolved to the default, never surfaced as errors.
type Selector struct {
	catalog *Catalog
	logger  zerolog.Logger
	// standardCeiling caps the cost tier reachable by standard-tier users
	// regardless of computed risk.
	standardCeiling CostTier
}

// NewSelector builds a selector over the catalog. Standard-tier users are
// capped at TierStandard backends.
func NewSelector(catalog *Catalog, logger zerolog.Logger) *Selector {
	return &Selector{
		catalog:         catalog,
		logger:          logger.With().Str("component", "selector").Logger(),
		standardCeiling: TierStandard,
	}
}

// Select resolves a format to a backend using the static route table:
// primary if present in the catalog, else backup, else the default.
func (s *Selector) Select(format Format) Backend {
	r, ok := formatRoutes[format]
	if !ok {
		s.logger.Warn().Str("format", string(format)).Msg("no route for format, using default backend")
		return s.catalog.Default()
	}
	if b, ok := s.catalog.ByID(r.primary); ok {
		return b
	}
	if b, ok := s.catalog.ByID(r.backup); ok {
		s.logger.Warn().Str("format", string(format)).Str("primary", r.primary).Msg("primary backend missing, using backup")
		return b
	}
	s.logger.Warn().Str("format", string(format)).Msg("route points at unknown backends, using default")
	return s.catalog.Default()
}

// SelectForRisk starts from the format route and biases it by content risk
// and user tier. High risk (or premium tier) raises the minimum cost tier;
// standard-tier users never exceed the ceiling. The routed backend wins
// whenever it sits inside the band; only when it falls outside does the
// cheapest qualifying backend take over.
func (s *Selector) SelectForRisk(format Format, risk domain.RiskLevel, tier domain.QualityTier) Backend {
	minTier := minTierForRisk(risk)
	if tier == domain.TierPremium && minTier < TierStandard {
		minTier = TierStandard
	}

	ceiling := TierPremium
	if tier != domain.TierPremium {
		ceiling = s.standardCeiling
		if minTier > ceiling {
			// Risk wants more than the plan allows; the cap wins.
			minTier = ceiling
		}
	}

	base := s.Select(format)
	if base.Tier >= minTier && base.Tier <= ceiling {
		return base
	}

	if base.Tier > ceiling {
		// The route points above the plan; its backup keeps the routing
		// intent when it fits the band.
		if r, ok := formatRoutes[format]; ok {
			if b, ok := s.catalog.ByID(r.backup); ok && b.Tier >= minTier && b.Tier <= ceiling {
				return b
			}
		}
	}

	var pick *Backend
	for _, b := range s.catalog.All() {
		if b.Tier < minTier || b.Tier > ceiling {
			continue
		}
		if pick == nil || b.PerSecondUSD < pick.PerSecondUSD {
			chosen := b
			pick = &chosen
		}
	}
	if pick == nil {
		s.logger.Warn().
			Str("format", string(format)).
			Str("risk", string(risk)).
			Str("tier", string(tier)).
			Msg("no backend satisfies risk selection, keeping format route")
		return base
	}
	return *pick
}

func minTierForRisk(risk domain.RiskLevel) CostTier {
	switch risk {
	case domain.RiskHigh:
		return TierPremium
	case domain.RiskMedium:
		return TierStandard
	default:
		return TierBudget
	}
}
