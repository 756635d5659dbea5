package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// fingerprintRouteMapping builds the Provider Gateway cache key from the
// normalized provider request: search-language query, region, bias circle,
// field mask, and pipeline version. The assistant reply language is
// deliberately excluded so switching it never invalidates the cache.
func fingerprintRouteMapping(m RouteMapping) string {
	fields := make([]string, 0, 8)
	fields = append(fields,
		"route="+string(m.Route),
		"q="+strings.ToLower(strings.TrimSpace(m.SearchQuery)),
		"lang="+m.SearchLang,
		"region="+m.Region,
		"pv="+m.PipelineVer,
	)

	if m.Bias != nil {
		fields = append(fields, fmt.Sprintf("bias=%.4f,%.4f,%.0f", m.Bias.Center.Lat, m.Bias.Center.Lng, m.Bias.Radius))
	}

	mask := append([]string(nil), m.FieldMask...)
	sort.Strings(mask)
	fields = append(fields, "fields="+strings.Join(mask, ","))

	sort.Strings(fields)
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}
