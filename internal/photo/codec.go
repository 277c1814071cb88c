// Package photo reads and writes the proof-photo tokens embedded in hour
// request descriptions.
//
// Three sentinels are recognised, byte-for-byte compatible with rows written
// by every historical client:
//
//	data:image/<subtype>;base64,<payload>
//	[PHOTO_DATA:<payload>]
//	[PHOTO_STORAGE:<bucket>|<path>|<mimeType>|<fileName>]
//
// Storage fields are percent-encoded with the encodeURIComponent alphabet.
// Older mobile builds wrote "Photo: <payload>" and some legacy rows carry a
// bare base64 run with no marker at all.
package photo

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

const (
	// DefaultMinRun is the shortest bare base64 run treated as a photo.
	DefaultMinRun = 100
	// StrictMinRun is used where a false positive is costly.
	StrictMinRun = 200

	inlineOpen  = "[PHOTO_DATA:"
	storageOpen = "[PHOTO_STORAGE:"
	defaultMime = "image/jpeg"
)

// Sentinel prefixes, for queries that filter descriptions by token.
const (
	InlineSentinel  = inlineOpen
	StorageSentinel = storageOpen
)

var (
	inlineRe  = regexp.MustCompile(`\[PHOTO_DATA:(.*?)\]`)
	storageRe = regexp.MustCompile(`\[PHOTO_STORAGE:([^\]]*)\]`)
	labelRe   = regexp.MustCompile(`Photo:[ \t]*((?:data:image/[a-zA-Z0-9.+-]+;base64,)?[A-Za-z0-9+/=]+)`)
	dataURIRe = regexp.MustCompile(`data:image/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=]+`)
	dataURLRe = regexp.MustCompile(`^data:([^;]+);base64,(.+)$`)
	spaceRe   = regexp.MustCompile(`\s+`)
	base64Re  = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)
	blankRe   = regexp.MustCompile(`\n{3,}`)

	runMu sync.Mutex
	runRe = map[int]*regexp.Regexp{}
)

// Photo is a decoded inline image.
type Photo struct {
	MimeType string `json:"mime_type"`
	// Data is the base64 payload without a data: prefix.
	Data string `json:"-"`
}

// DataURL renders the photo for an <img> tag.
func (p Photo) DataURL() string {
	return "data:" + p.MimeType + ";base64," + p.Data
}

// Bytes decodes the payload.
func (p Photo) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("decode photo payload: %w", err)
	}
	return b, nil
}

// Normalize strips whitespace from a raw payload and resolves its mime type,
// sniffing PNG and JPEG signatures when no data: prefix is present.
func Normalize(raw string) (Photo, bool) {
	raw = spaceRe.ReplaceAllString(raw, "")
	if raw == "" {
		return Photo{}, false
	}
	if m := dataURLRe.FindStringSubmatch(raw); m != nil {
		return Photo{MimeType: m[1], Data: m[2]}, true
	}
	return Photo{MimeType: sniff(raw), Data: raw}, true
}

func sniff(payload string) string {
	switch {
	case strings.HasPrefix(payload, "iVBORw0KGgo"):
		return "image/png"
	case strings.HasPrefix(payload, "/9j/"):
		return "image/jpeg"
	}
	return defaultMime
}

func decodes(payload string) bool {
	_, err := base64.StdEncoding.DecodeString(payload)
	return err == nil
}

func bareRun(minRun int) *regexp.Regexp {
	if minRun <= 0 {
		minRun = DefaultMinRun
	}
	runMu.Lock()
	defer runMu.Unlock()
	re, ok := runRe[minRun]
	if !ok {
		re = regexp.MustCompile(fmt.Sprintf(`[A-Za-z0-9+/]{%d,}={0,2}`, minRun))
		runRe[minRun] = re
	}
	return re
}

// Extract finds an inline photo in a description. Candidates are tried in a
// fixed order: [PHOTO_DATA:], "Photo:" labels, data URIs, a bare base64 run of
// at least minRun characters, then whatever base64 remains once known text is
// removed. Storage tokens are never returned here; see ParseStorageToken.
func Extract(description string, minRun int) (Photo, bool) {
	if description == "" {
		return Photo{}, false
	}
	if m := inlineRe.FindStringSubmatch(description); m != nil {
		if p, ok := Normalize(m[1]); ok {
			return p, true
		}
	}
	if m := labelRe.FindStringSubmatch(description); m != nil {
		if p, ok := Normalize(m[1]); ok && decodes(p.Data) {
			return p, true
		}
	}
	if m := dataURIRe.FindString(description); m != "" {
		return Normalize(m)
	}

	rest := storageRe.ReplaceAllString(description, " ")
	if m := bareRun(minRun).FindString(rest); m != "" {
		return Normalize(m)
	}
	return leftover(rest, minRun)
}

// leftover handles payloads broken across lines: once markers are gone, a
// description that is nothing but base64 is treated as a photo.
func leftover(s string, minRun int) (Photo, bool) {
	s = strings.NewReplacer("Photo:", "", inlineOpen, "", "]", "").Replace(s)
	s = spaceRe.ReplaceAllString(s, "")
	if minRun <= 0 {
		minRun = DefaultMinRun
	}
	if len(s) < minRun || !base64Re.MatchString(s) {
		return Photo{}, false
	}
	return Normalize(s)
}

// HasPhoto reports whether a description carries an inline or stored photo.
func HasPhoto(description string) bool {
	if _, ok := ParseStorageToken(description); ok {
		return true
	}
	_, ok := Extract(description, DefaultMinRun)
	return ok
}

// CleanDescription removes every photo marker and payload, leaving the
// student's notes.
func CleanDescription(description string) string {
	s := inlineRe.ReplaceAllString(description, "")
	s = storageRe.ReplaceAllString(s, "")
	s = labelRe.ReplaceAllString(s, "")
	s = dataURIRe.ReplaceAllString(s, "")
	s = blankRe.ReplaceAllString(s, "\n\n")
	return strings.Trim(strings.TrimSpace(s), " |\n")
}

// InlineToken wraps an image payload for storage in a description.
func InlineToken(imageData string) string {
	return inlineOpen + imageData + "]"
}

// Compose joins description parts with a blank line, skipping empty ones.
func Compose(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// StorageRef points at a photo copied into blob storage.
type StorageRef struct {
	Bucket   string `json:"bucket"`
	Path     string `json:"path"`
	MimeType string `json:"mime_type"`
	FileName string `json:"file_name"`
}

// Token renders the ref as a [PHOTO_STORAGE:...] sentinel.
func (r StorageRef) Token() string {
	fields := []string{r.Bucket, r.Path, r.MimeType, r.FileName}
	for i, f := range fields {
		fields[i] = encodeURIComponent(f)
	}
	return storageOpen + strings.Join(fields, "|") + "]"
}

// ParseStorageToken returns the first well-formed storage token in a
// description.
func ParseStorageToken(description string) (StorageRef, bool) {
	for _, m := range storageRe.FindAllStringSubmatch(description, -1) {
		fields := strings.Split(m[1], "|")
		if len(fields) != 4 {
			continue
		}
		decoded := make([]string, 4)
		ok := true
		for i, f := range fields {
			v, err := url.PathUnescape(f)
			if err != nil {
				ok = false
				break
			}
			decoded[i] = v
		}
		if !ok || decoded[0] == "" || decoded[1] == "" {
			continue
		}
		ref := StorageRef{Bucket: decoded[0], Path: decoded[1], MimeType: decoded[2], FileName: decoded[3]}
		if ref.MimeType == "" {
			ref.MimeType = defaultMime
		}
		return ref, true
	}
	return StorageRef{}, false
}

func encodeURIComponent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
