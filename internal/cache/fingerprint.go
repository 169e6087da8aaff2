package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/modelrelay/relay/internal/core"
)

// field separator inside the digest input; never appears in normalized text
const fingerprintSep = "\x1f"

// Fingerprinter derives the deterministic cache key for a request. Only
// metadata keys on the allow-list affect the key; everything else is
// opaque passthrough.
type Fingerprinter struct {
	allowList []string
}

// NewFingerprinter builds a fingerprinter with the given metadata
// allow-list. The list is copied and sorted once.
func NewFingerprinter(allowList []string) *Fingerprinter {
	keys := make([]string, len(allowList))
	copy(keys, allowList)
	sort.Strings(keys)

	return &Fingerprinter{allowList: keys}
}

// Fingerprint hashes the cache-relevant portion of the request. Requests
// differing only in irrelevant metadata or metadata key order produce the
// same fingerprint.
func (f *Fingerprinter) Fingerprint(req core.Request) string {
	h := sha256.New()

	writeField(h, string(req.TaskCategory))
	writeField(h, normalizeText(req.Prompt))
	writeField(h, normalizeText(req.SystemPrompt))
	writeField(h, strconv.FormatFloat(req.Temperature, 'f', -1, 64))
	writeField(h, strconv.Itoa(req.MaxOutputTokens))

	for _, key := range f.allowList {
		if value, ok := req.Metadata[key]; ok {
			writeField(h, key+"="+value)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeField(w io.Writer, field string) {
	io.WriteString(w, field)          //nolint:errcheck // hash writes cannot fail
	io.WriteString(w, fingerprintSep) //nolint:errcheck
}

// trims and collapses whitespace runs so formatting noise does not defeat
// cache hits
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
