package minireq

import (
	"net/url"
	"strings"
)

// appendQueryParam appends "key=value", percent-encoded, to pathAndQuery's
// query string.
func appendQueryParam(pathAndQuery, key, value string) string {
	sep := "?"
	if strings.Contains(pathAndQuery, "?") {
		sep = "&"
	}
	return pathAndQuery + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
