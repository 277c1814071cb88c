package photo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clubhours/internal/metrics"
)

// DefaultBucket is the storage bucket proof photos are copied into.
const DefaultBucket = "proof-photos"

// ErrStorageDisabled is returned when no object store is configured.
var ErrStorageDisabled = errors.New("photo storage not configured")

// Uploader writes an object into blob storage.
type Uploader interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
}

// Keeper embeds submitted photos into descriptions and copies them to blob
// storage when an uploader is configured.
type Keeper struct {
	uploader Uploader
	bucket   string
	log      *logrus.Entry
	now      func() time.Time
}

// NewKeeper builds a Keeper. A nil uploader keeps photos inline only.
func NewKeeper(uploader Uploader, bucket string, log *logrus.Entry) *Keeper {
	if bucket == "" {
		bucket = DefaultBucket
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Keeper{uploader: uploader, bucket: bucket, log: log, now: time.Now}
}

// Attach appends the photo to a description. The inline payload is always
// kept; the storage token and file name are added only when the upload
// succeeds, and upload failures are logged rather than returned.
func (k *Keeper) Attach(ctx context.Context, description, imageData, studentID, eventName string) (string, string) {
	if imageData == "" {
		return Compose(description), ""
	}
	parts := []string{description, InlineToken(imageData)}

	p, ok := Normalize(imageData)
	if !ok {
		return Compose(parts...), ""
	}
	ref, err := k.Store(ctx, p, studentID, eventName)
	switch {
	case errors.Is(err, ErrStorageDisabled):
	case err != nil:
		k.log.WithError(err).WithField("student", studentID).Warn("proof photo upload failed, keeping inline copy")
	default:
		parts = append(parts, ref.Token())
		return Compose(parts...), ref.FileName
	}
	return Compose(parts...), ""
}

// Store uploads a photo and returns the ref to embed.
func (k *Keeper) Store(ctx context.Context, p Photo, studentID, eventName string) (StorageRef, error) {
	if k == nil || k.uploader == nil {
		return StorageRef{}, ErrStorageDisabled
	}
	data, err := p.Bytes()
	if err != nil {
		return StorageRef{}, err
	}
	path, fileName := ObjectPath(studentID, eventName, k.now(), uuid.NewString(), p.MimeType)
	err = k.uploader.Upload(ctx, k.bucket, path, data, p.MimeType)
	metrics.PhotoUploads.WithLabelValues("storage", metrics.Result(err)).Inc()
	if err != nil {
		return StorageRef{}, fmt.Errorf("upload %s: %w", path, err)
	}
	return StorageRef{Bucket: k.bucket, Path: path, MimeType: p.MimeType, FileName: fileName}, nil
}
