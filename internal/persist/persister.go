// Package persist moves finished provider assets into durable storage and
// records them in the gallery.
package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tryon/internal/credits"
	"tryon/internal/domain"
	"tryon/internal/storage"
)

const defaultMaxDownload = 200 << 20

// Request identifies one result of one task.
type Request struct {
	ResultURL string
	Kind      domain.Kind
	OwnerID   string
	Plan      domain.Plan
	TaskID    string
	Index     int
}

// Options configures a Persister.
type Options struct {
	Store         storage.ObjectStore
	Gallery       domain.GalleryRepository
	HTTPClient    *http.Client
	Logger        zerolog.Logger
	WatermarkText string
	MaxDownload   int64
	NewID         func() string
	Now           func() time.Time
}

// Persister saves results. It is safe for concurrent use.
type Persister struct {
	store         storage.ObjectStore
	gallery       domain.GalleryRepository
	httpClient    *http.Client
	logger        zerolog.Logger
	watermarkText string
	maxDownload   int64
	newID         func() string
	now           func() time.Time
}

// New builds a Persister.
func New(opts Options) *Persister {
	p := &Persister{
		store:         opts.Store,
		gallery:       opts.Gallery,
		httpClient:    opts.HTTPClient,
		logger:        opts.Logger,
		watermarkText: opts.WatermarkText,
		maxDownload:   opts.MaxDownload,
		newID:         opts.NewID,
		now:           opts.Now,
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if p.watermarkText == "" {
		p.watermarkText = "TryOn Studio"
	}
	if p.maxDownload <= 0 {
		p.maxDownload = defaultMaxDownload
	}
	if p.newID == nil {
		p.newID = uuid.NewString
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

type asset struct {
	data     []byte
	mimeType string
	ext      string
	thumb    []byte
}

// Persist downloads the result, stores it and records a gallery row.
//
// On a storage failure it returns an item pointing at the provider URL and a
// *StorageError. On a metadata failure it returns the stored item and a
// *MetadataError; the object is left in place.
func (p *Persister) Persist(ctx context.Context, req Request) (*domain.GalleryItem, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("persist: unknown kind %q", req.Kind)
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, domain.ErrUnauthorized
	}
	id := p.newID()
	item := &domain.GalleryItem{
		ID:          id,
		OwnerID:     req.OwnerID,
		TaskID:      req.TaskID,
		ResultIndex: req.Index,
		URL:         req.ResultURL,
		Type:        domain.GalleryItemTypeFor(req.Kind),
		CreatedAt:   p.now().UTC(),
	}
	log := p.logger.With().Str("task_id", req.TaskID).Str("item_id", id).Int("index", req.Index).Logger()

	raw, contentType, err := p.download(ctx, req.ResultURL)
	if err != nil {
		log.Error().Err(err).Msg("download failed")
		item.MimeType = fallbackMime(req.Kind)
		return item, &StorageError{Err: err}
	}

	a, err := p.prepare(raw, contentType, req)
	if err != nil {
		log.Error().Err(err).Msg("prepare asset failed")
		item.MimeType = fallbackMime(req.Kind)
		return item, &StorageError{Err: err}
	}
	item.MimeType = a.mimeType

	folder := req.OwnerID + "/" + string(req.Kind) + "s"
	key := folder + "/" + id + "." + a.ext
	url, err := p.store.Put(ctx, key, a.data, a.mimeType)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("store asset failed")
		return item, &StorageError{Err: err}
	}
	item.URL = url

	var thumbKey string
	if len(a.thumb) > 0 {
		thumbKey = folder + "/thumbs/" + id + ".webp"
		thumbURL, err := p.store.Put(ctx, thumbKey, a.thumb, "image/webp")
		if err != nil {
			// the asset itself is safe, a missing thumbnail only costs the preview
			log.Warn().Err(err).Str("key", thumbKey).Msg("store thumbnail failed")
			thumbKey = ""
		} else {
			item.ThumbnailURL = thumbURL
		}
	}

	saved, err := p.gallery.Insert(ctx, item)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("gallery insert failed, object left for reconciliation")
		return item, &MetadataError{Key: key, Err: err}
	}
	if saved.ID != id {
		// another run already recorded this result; drop our copy
		log.Info().Str("existing_id", saved.ID).Msg("result already saved")
		p.discard(ctx, log, key, thumbKey)
	}
	return saved, nil
}

// SaveUpload stores a user-supplied reference image and records it as an
// upload gallery item.
func (p *Persister) SaveUpload(ctx context.Context, ownerID string, data []byte, mimeType string) (*domain.GalleryItem, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrUnauthorized
	}
	mimeType, ext := imageType(mimeType, data)
	if ext == "" {
		return nil, fmt.Errorf("%w: unsupported image type", domain.ErrInvalidRequest)
	}
	id := p.newID()
	key := ownerID + "/uploads/" + id + "." + ext
	url, err := p.store.Put(ctx, key, data, mimeType)
	if err != nil {
		return nil, &StorageError{Err: err}
	}
	item := &domain.GalleryItem{
		ID:        id,
		OwnerID:   ownerID,
		URL:       url,
		MimeType:  mimeType,
		Type:      domain.GalleryItemUpload,
		CreatedAt: p.now().UTC(),
	}
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		if thumb, err := thumbnail(img); err == nil {
			thumbKey := ownerID + "/uploads/thumbs/" + id + ".webp"
			if thumbURL, err := p.store.Put(ctx, thumbKey, thumb, "image/webp"); err == nil {
				item.ThumbnailURL = thumbURL
			}
		}
	}
	saved, err := p.gallery.Insert(ctx, item)
	if err != nil {
		return item, &MetadataError{Key: key, Err: err}
	}
	return saved, nil
}

func (p *Persister) prepare(raw []byte, contentType string, req Request) (*asset, error) {
	if req.Kind == domain.KindVideo {
		mimeType, ext := videoType(contentType, req.ResultURL)
		return &asset{data: raw, mimeType: mimeType, ext: ext}, nil
	}

	mimeType, ext := imageType(contentType, raw)
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		if credits.EntitlementsFor(req.Plan).Watermark {
			return nil, fmt.Errorf("decode image for watermark: %w", err)
		}
		if ext == "" {
			mimeType, ext = "image/png", "png"
		}
		p.logger.Warn().Err(err).Str("task_id", req.TaskID).Msg("undecodable image stored without thumbnail")
		return &asset{data: raw, mimeType: mimeType, ext: ext}, nil
	}

	a := &asset{data: raw, mimeType: mimeType, ext: ext}
	if credits.EntitlementsFor(req.Plan).Watermark {
		img = watermark(img, p.watermarkText)
		encoded, err := encodePNG(img)
		if err != nil {
			return nil, err
		}
		a.data, a.mimeType, a.ext = encoded, "image/png", "png"
	}
	if a.ext == "" {
		a.mimeType, a.ext = "image/png", "png"
	}
	thumb, err := thumbnail(img)
	if err != nil {
		p.logger.Warn().Err(err).Str("task_id", req.TaskID).Msg("thumbnail failed")
	} else {
		a.thumb = thumb
	}
	return a, nil
}

func (p *Persister) download(ctx context.Context, url string) ([]byte, string, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return nil, "", fmt.Errorf("invalid result url %q", url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxDownload+1))
	if err != nil {
		return nil, "", fmt.Errorf("read download: %w", err)
	}
	if int64(len(data)) > p.maxDownload {
		return nil, "", errors.New("download exceeds size limit")
	}
	if len(data) == 0 {
		return nil, "", errors.New("download is empty")
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (p *Persister) discard(ctx context.Context, log zerolog.Logger, keys ...string) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if err := p.store.Delete(ctx, k); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("key", k).Msg("discard duplicate object failed")
		}
	}
}

func imageType(contentType string, data []byte) (string, string) {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if ct == "" || ct == "application/octet-stream" || ct == "binary/octet-stream" {
		ct = http.DetectContentType(data)
	}
	switch ct {
	case "image/png":
		return "image/png", "png"
	case "image/jpeg", "image/jpg":
		return "image/jpeg", "jpg"
	case "image/webp":
		return "image/webp", "webp"
	default:
		return ct, ""
	}
}

func videoType(contentType, url string) (string, string) {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch {
	case ct == "video/webm" || strings.HasSuffix(strings.ToLower(url), ".webm"):
		return "video/webm", "webm"
	case ct == "video/quicktime" || strings.HasSuffix(strings.ToLower(url), ".mov"):
		return "video/quicktime", "mov"
	default:
		return "video/mp4", "mp4"
	}
}

func fallbackMime(kind domain.Kind) string {
	if kind == domain.KindVideo {
		return "video/mp4"
	}
	return "image/png"
}
