package risk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"reelgen/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		imageCount int
		want       domain.RiskLevel
	}{
		{
			name:   "plain narration is low",
			script: "A quiet morning over the rice fields as the sun rises.",
			want:   domain.RiskLow,
		},
		{
			name:   "fine motor keyword is high",
			script: "Close-up of hands kneading dough on a wooden table.",
			want:   domain.RiskHigh,
		},
		{
			name:   "typing is high",
			script: "She is typing the final message before the deadline.",
			want:   domain.RiskHigh,
		},
		{
			name:   "keyword survives punctuation",
			script: "Look at those fingers! Unbelievable.",
			want:   domain.RiskHigh,
		},
		{
			name: "four distinct overlay markers are high",
			script: `[LOWER THIRD: intro] some narration [TITLE: day one] more text ` +
				`[CAPTION: riverside] closing [END CARD: subscribe]`,
			want: domain.RiskHigh,
		},
		{
			name:   "repeated marker counts once",
			script: `[SALE] one [SALE] two [SALE] three [SALE] four`,
			want:   domain.RiskLow,
		},
		{
			name:   "legibility keyword is medium",
			script: "The camera pans across the menu on the wall.",
			want:   domain.RiskMedium,
		},
		{
			name:   "long script is medium",
			script: strings.Repeat("word ", 121),
			want:   domain.RiskMedium,
		},
		{
			name:       "large image set is medium",
			script:     "Simple product showcase.",
			imageCount: 6,
			want:       domain.RiskMedium,
		},
		{
			name:       "five images stay low",
			script:     "Simple product showcase.",
			imageCount: 5,
			want:       domain.RiskLow,
		},
		{
			name:   "fine motor beats legibility",
			script: "Hands pointing at the sign while reading the caption.",
			want:   domain.RiskHigh,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.script, tc.imageCount))
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	script := "Hands assembling the product, step by step."
	first := Classify(script, 3)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(script, 3))
	}
}
