package pagination

import (
	"net/http"
	"strings"
)

// NextLink returns the target of the rel="next" entry of the Link
// header, or "" when there is no further page.
//
// Example header:
//
//	<https://evergreen.example.com/rest/v2/projects/p/patches?start_at=x>; rel="next"
func NextLink(h http.Header) string {
	for _, header := range h.Values("Link") {
		for _, entry := range strings.Split(header, ",") {
			target, params, ok := strings.Cut(strings.TrimSpace(entry), ";")
			if !ok {
				continue
			}
			target = strings.TrimSpace(target)
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			if hasRel(params, "next") {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}

func hasRel(params, rel string) bool {
	for _, p := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
			continue
		}
		for _, r := range strings.Fields(strings.Trim(strings.TrimSpace(value), `"`)) {
			if strings.EqualFold(r, rel) {
				return true
			}
		}
	}
	return false
}
