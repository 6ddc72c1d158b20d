package catalog

import "fmt"

// Styles supported by the product. A style combined with a duration bucket
// forms the Format key used for backend routing.
const (
	StyleCinematic = "cinematic"
	StyleUGC       = "ugc"
	StyleSlideshow = "slideshow"
)

var knownStyles = map[string]bool{
	StyleCinematic: true,
	StyleUGC:       true,
	StyleSlideshow: true,
}

// IsValidStyle reports whether the style is one the product supports.
func IsValidStyle(style string) bool {
	return knownStyles[style]
}

// Duration buckets. Buckets are coarse on purpose: routing only needs to
// know whether a request fits a single short call or must be chunked.
const (
	BucketShort    = "short"    // <= 10s
	BucketStandard = "standard" // <= 30s
	BucketLong     = "long"     // <= 60s
)

// MaxBucketSeconds is the longest request the product accepts.
const MaxBucketSeconds = 60

// BucketForSeconds maps a requested duration to its bucket.
func BucketForSeconds(seconds int) string {
	switch {
	case seconds <= 10:
		return BucketShort
	case seconds <= 30:
		return BucketStandard
	default:
		return BucketLong
	}
}

// Format is the (style, duration bucket) routing key. It is derived per
// request and never persisted.
type Format string

// FormatFor builds the routing key for a style and requested duration.
func FormatFor(style string, seconds int) Format {
	return Format(fmt.Sprintf("%s:%s", style, BucketForSeconds(seconds)))
}

type route struct {
	primary string
	backup  string
}

// formatRoutes maps formats to a primary/backup backend pair. Unmapped
// formats resolve to the catalog default.
var formatRoutes = map[Format]route{
	"cinematic:short":    {primary: "kling-std", backup: "pixverse-lite"},
	"cinematic:standard": {primary: "kling-std", backup: "pixverse-lite"},
	"cinematic:long":     {primary: "kling-pro", backup: "kling-std"},
	"ugc:short":          {primary: "pixverse-lite", backup: "kling-std"},
	"ugc:standard":       {primary: "kling-std", backup: "pixverse-lite"},
	"ugc:long":           {primary: "kling-std", backup: "pixverse-lite"},
	"slideshow:short":    {primary: "runway-gen3", backup: "kling-std"},
	"slideshow:standard": {primary: "runway-gen3", backup: "kling-std"},
	"slideshow:long":     {primary: "kling-pro", backup: "runway-gen3"},
}
