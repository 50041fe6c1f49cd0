package domain

import "time"

// GalleryItemType enumerates the origin of a gallery entry.
type GalleryItemType string

const (
	GalleryItemUpload     GalleryItemType = "upload"
	GalleryItemGeneration GalleryItemType = "generation"
	GalleryItemVideo      GalleryItemType = "video"
)

// GalleryItemTypeFor maps a task kind to the gallery entry type it produces.
func GalleryItemTypeFor(kind Kind) GalleryItemType {
	if kind == KindVideo {
		return GalleryItemVideo
	}
	return GalleryItemGeneration
}

// GalleryItem is a durable record of one saved asset. ID doubles as the
// storage object name so a retried save never creates a second object.
type GalleryItem struct {
	ID           string
	OwnerID      string
	TaskID       string
	ResultIndex  int
	URL          string
	ThumbnailURL string
	MimeType     string
	Type         GalleryItemType
	CreatedAt    time.Time
}
