package google

import (
	"encoding/base64"
	"strings"
)

func fromBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// splitDataURI splits a "data:<mime>;base64,<payload>" string into its
// mime type and base64 payload.
func splitDataURI(uri string) (mime, payload string) {
	rest := strings.TrimPrefix(uri, "data:")
	semi := strings.Index(rest, ";")
	comma := strings.Index(rest, ",")
	if semi < 0 || comma < 0 {
		return "application/octet-stream", uri
	}
	return rest[:semi], rest[comma+1:]
}
