package capture

import (
	"strings"
	"time"
)

// timestampLayout renders YYYY-MM-DD-HH-mm-ss.
const timestampLayout = "2006-01-02-15-04-05"

// Preset describes what a capture session is for. Only used for naming and metadata.
type Preset struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

// Slug returns a lowercase, dash-separated form of the preset name.
func (p Preset) Slug() string {
	name := p.Name
	if name == "" {
		name = p.ID
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "recording"
	}
	return slug
}

// FileName builds <preset-slug>-<YYYY-MM-DD-HH-mm-ss>.<ext>.
func FileName(p Preset, mimeType string, at time.Time) string {
	return p.Slug() + "-" + at.Format(timestampLayout) + "." + ExtensionFor(mimeType)
}
