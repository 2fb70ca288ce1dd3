package validate

import "fmt"

// Text field length limits — single source of truth for backend and frontend.
const (
	MaxAssetTitleLength    = 500
	MaxMarkerNameLength    = 200
	MaxShareTokenLength    = 100
	MaxSharePasswordLength = 100
	MaxEventTypeLength     = 50
)

func checkLen(value string, max int, field string) string {
	if len(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func AssetTitle(s string) string    { return checkLen(s, MaxAssetTitleLength, "title") }
func MarkerName(s string) string    { return checkLen(s, MaxMarkerNameLength, "marker name") }
func ShareToken(s string) string    { return checkLen(s, MaxShareTokenLength, "share token") }
func SharePassword(s string) string { return checkLen(s, MaxSharePasswordLength, "password") }
func EventType(s string) string     { return checkLen(s, MaxEventTypeLength, "event type") }

// FieldLimits returns the limits map served by /api/limits.
func FieldLimits() map[string]int {
	return map[string]int{
		"assetTitle": MaxAssetTitleLength,
		"markerName": MaxMarkerNameLength,
	}
}
