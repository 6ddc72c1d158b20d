// Package risk classifies how hard a script and image set are for video
// models to render faithfully. The heuristics target the two classic
// failure modes of current backends: fine motor motion (hands, fingers)
// and on-screen text legibility.
package risk

import (
	"regexp"
	"strings"

	"reelgen/internal/domain"
)

// Word-count threshold past which pacing drift becomes likely on a single
// generation.
const longScriptWords = 120

// Image sets this large force frequent cuts, which raises drift risk.
const largeImageSet = 6

var fineMotorKeywords = []string{
	"hand", "hands", "finger", "fingers", "fingertip",
	"gesture", "gestures", "gesturing",
	"grip", "grips", "grabbing", "typing", "pointing", "clapping",
}

var legibilityKeywords = []string{
	"read", "reads", "reading",
	"sign", "signs", "signage",
	"caption", "captions", "subtitle", "subtitles",
	"screen", "label", "labels", "menu",
}

// overlayMarker matches inline text-overlay notation authors use in
// scripts: [LOWER THIRD: ...], *emphasis*, "quoted captions". The count is
// a heuristic, not a guarantee.
var overlayMarker = regexp.MustCompile(`\[[^\[\]]+\]|\*[^*\n]+\*|"[^"\n]{2,}"`)

// Classify returns the content risk level for a script and its image set.
// Deterministic and side-effect free; it must run before backend selection
// on every request.
func Classify(script string, imageCount int) domain.RiskLevel {
	words := strings.Fields(script)
	lowered := make([]string, len(words))
	for i, w := range words {
		lowered[i] = strings.ToLower(strings.Trim(w, ".,!?;:()'\""))
	}

	if containsAny(lowered, fineMotorKeywords) || distinctOverlayMarkers(script) >= 4 {
		return domain.RiskHigh
	}

	if containsAny(lowered, legibilityKeywords) || len(words) > longScriptWords || imageCount >= largeImageSet {
		return domain.RiskMedium
	}

	return domain.RiskLow
}

func containsAny(words []string, keywords []string) bool {
	set := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		set[k] = true
	}
	for _, w := range words {
		if set[w] {
			return true
		}
	}
	return false
}

func distinctOverlayMarkers(script string) int {
	matches := overlayMarker.FindAllString(script, -1)
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		seen[m] = true
	}
	return len(seen)
}
