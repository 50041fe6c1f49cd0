// Package reconcile finds stored assets that never got a gallery row, which
// happens when the metadata write fails after the upload succeeded.
package reconcile

import (
	"context"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tryon/internal/domain"
	"tryon/internal/storage"
)

const batchSize = 500

// Orphan is a stored asset without a gallery row.
type Orphan struct {
	Key      string
	ThumbKey string
	ID       string
	OwnerID  string
	Type     domain.GalleryItemType
	MimeType string
	Object   storage.Object
}

// Report summarizes one run.
type Report struct {
	Scanned  int
	Skipped  int
	Orphans  []Orphan
	Repaired int
}

// Reconciler compares a store listing with the gallery index.
type Reconciler struct {
	store  storage.ObjectStore
	index  Index
	logger zerolog.Logger
}

func New(store storage.ObjectStore, index Index, logger zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, index: index, logger: logger}
}

// Run lists every object under prefix and reports assets without rows.
// With repair set, a row is inserted for each of them.
func (r *Reconciler) Run(ctx context.Context, prefix string, repair bool) (*Report, error) {
	objects, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list %q: %w", prefix, err)
	}

	report := &Report{Scanned: len(objects)}
	assets := make(map[string]Orphan)
	thumbs := make(map[string]string)
	for _, obj := range objects {
		a, isThumb, ok := parseKey(obj.Key)
		if !ok {
			report.Skipped++
			continue
		}
		if isThumb {
			thumbs[a.ID] = obj.Key
			continue
		}
		a.Object = obj
		assets[a.ID] = a
	}

	ids := make([]string, 0, len(assets))
	for id := range assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		found, err := r.index.ExistingIDs(ctx, ids[start:end])
		if err != nil {
			return report, err
		}
		for _, id := range ids[start:end] {
			if found[id] {
				continue
			}
			o := assets[id]
			o.ThumbKey = thumbs[id]
			report.Orphans = append(report.Orphans, o)
		}
	}

	for _, o := range report.Orphans {
		log := r.logger.With().Str("key", o.Key).Str("user_id", o.OwnerID).Logger()
		if !repair {
			log.Info().Msg("reconcile: asset without gallery row")
			continue
		}
		item := domain.GalleryItem{
			ID:        o.ID,
			OwnerID:   o.OwnerID,
			URL:       r.store.URL(o.Key),
			MimeType:  o.MimeType,
			Type:      o.Type,
			CreatedAt: o.Object.LastModified.UTC(),
		}
		if o.ThumbKey != "" {
			item.ThumbnailURL = r.store.URL(o.ThumbKey)
		}
		if err := r.index.Insert(ctx, item); err != nil {
			log.Error().Err(err).Msg("reconcile: repair failed")
			continue
		}
		report.Repaired++
		log.Info().Str("item_id", o.ID).Msg("reconcile: gallery row restored")
	}
	return report, nil
}

// parseKey understands {owner}/{images|videos|uploads}/{id}.{ext} and
// {owner}/{images|videos|uploads}/thumbs/{id}.webp.
func parseKey(key string) (Orphan, bool, bool) {
	parts := strings.Split(key, "/")
	var file string
	thumb := false
	switch {
	case len(parts) == 3:
		file = parts[2]
	case len(parts) == 4 && parts[2] == "thumbs":
		file = parts[3]
		thumb = true
	default:
		return Orphan{}, false, false
	}

	var typ domain.GalleryItemType
	switch parts[1] {
	case "images":
		typ = domain.GalleryItemTypeFor(domain.KindImage)
	case "videos":
		typ = domain.GalleryItemTypeFor(domain.KindVideo)
	case "uploads":
		typ = domain.GalleryItemUpload
	default:
		return Orphan{}, false, false
	}

	ext := path.Ext(file)
	id := strings.TrimSuffix(file, ext)
	if parts[0] == "" || uuid.Validate(id) != nil {
		return Orphan{}, false, false
	}
	return Orphan{Key: key, ID: id, OwnerID: parts[0], Type: typ, MimeType: mimeFor(ext)}, thumb, true
}

var knownTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

func mimeFor(ext string) string {
	ext = strings.ToLower(ext)
	if t, ok := knownTypes[ext]; ok {
		return t
	}
	t := mime.TypeByExtension(ext)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	if t == "" {
		return "application/octet-stream"
	}
	return t
}
