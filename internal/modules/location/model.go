// README: Route lookup types shared by the location service and its cache.
package location

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// cacheKey identifies a route independent of whitespace and letter case.
func cacheKey(origin, destination string) string {
	norm := strings.ToLower(strings.TrimSpace(origin)) + "|" + strings.ToLower(strings.TrimSpace(destination))
	sum := sha1.Sum([]byte(norm))
	return "route:segments:" + hex.EncodeToString(sum[:])
}
