// Package report builds the renderable view of a scan: a deterministic
// report identity plus a markup-free view model that the HTML, PDF and
// spreadsheet renderers all consume. Builders never touch raw payloads;
// they take the typed variants from the payload package.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Identity is the triple that names a report. The same triple always yields
// the same id, so a re-render of a stored scan keys to the same purchases
// and export filenames.
type Identity struct {
	AnalyzerKey   string
	NormalizedURL string
	StartedAt     time.Time
}

// ID derives the report id: the first 16 hex characters of the SHA-256 of
// the identity triple. Safe for URLs and filenames.
func (id Identity) ID() string {
	return MakeID(id.AnalyzerKey, id.NormalizedURL, id.StartedAt)
}

// MakeID is the function form of Identity.ID.
func MakeID(analyzerKey, normalizedURL string, startedAt time.Time) string {
	sum := sha256.Sum256([]byte(analyzerKey + "|" + normalizedURL + "|" + startedAt.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:8])
}

// NormalizeURL canonicalizes user input before it enters a report identity:
// a missing scheme defaults to https, scheme and host are lowercased, the
// fragment and default ports are dropped, and a bare trailing slash is
// trimmed. Two spellings of the same page must produce the same id.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", eris.New("report: empty url")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", eris.Wrapf(err, "report: parse url %q", raw)
	}
	if u.Host == "" {
		return "", eris.Errorf("report: url %q has no host", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("report: unsupported scheme %q", u.Scheme)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	switch {
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}

	if u.Path == "/" && u.RawQuery == "" {
		u.Path = ""
	} else if strings.HasSuffix(u.Path, "/") && u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}
