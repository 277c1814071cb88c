package photo

// Kind says which form of a photo an hour request carries.
type Kind string

const (
	None   Kind = "none"
	Inline Kind = "inline"
	Stored Kind = "stored"
)

// Attachment is the photo of one hour request. Inline wins when both forms
// are present because it renders without a storage round trip.
type Attachment struct {
	Inline *Photo
	Stored *StorageRef
}

// FromDescription parses every photo form out of a description.
func FromDescription(description string) Attachment {
	var a Attachment
	if p, ok := Extract(description, DefaultMinRun); ok {
		a.Inline = &p
	}
	if ref, ok := ParseStorageToken(description); ok {
		a.Stored = &ref
	}
	return a
}

// Kind returns the preferred form.
func (a Attachment) Kind() Kind {
	switch {
	case a.Inline != nil:
		return Inline
	case a.Stored != nil:
		return Stored
	}
	return None
}

// MimeType of whichever form is preferred.
func (a Attachment) MimeType() string {
	switch a.Kind() {
	case Inline:
		return a.Inline.MimeType
	case Stored:
		return a.Stored.MimeType
	}
	return ""
}
