package photo

import (
	"regexp"
	"strings"
	"time"
)

const maxNameLen = 80

var (
	nameRe    = regexp.MustCompile(`[^a-z0-9]+`)
	segmentRe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

// Sanitize lowercases s and collapses anything outside [a-z0-9] into single
// underscores, capped at 80 characters.
func Sanitize(s string) string {
	s = nameRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
	s = strings.Trim(s, "_")
	if len(s) > maxNameLen {
		s = strings.TrimRight(s[:maxNameLen], "_")
	}
	return s
}

// Extension derives a file extension from a mime type, ignoring any +suffix.
func Extension(mimeType string) string {
	_, sub, ok := strings.Cut(mimeType, "/")
	if !ok {
		return "jpg"
	}
	sub, _, _ = strings.Cut(sub, "+")
	if sub = Sanitize(sub); sub == "" {
		return "jpg"
	}
	return sub
}

// FileName builds the display name of a proof photo.
func FileName(parts []string, mimeType string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = Sanitize(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, "proof")
	}
	return strings.Join(kept, "_") + "." + Extension(mimeType)
}

func stamp(t time.Time) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format("2006-01-02T15:04:05.000Z"))
}

// ObjectPath returns the blob path and file name for a student's upload:
// <student>_<event>_<timestamp>_<suffix>/<file>.
func ObjectPath(studentID, eventName string, at time.Time, suffix, mimeType string) (path, fileName string) {
	ts := stamp(at)
	fileName = FileName([]string{studentID, eventName, ts}, mimeType)
	segments := []string{studentID, eventName, ts, suffix}
	for i, s := range segments {
		if s = segmentRe.ReplaceAllString(s, "_"); s == "" {
			s = "_"
		}
		segments[i] = s
	}
	return strings.Join(segments, "_") + "/" + fileName, fileName
}
