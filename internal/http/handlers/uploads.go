package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"tryon/internal/domain"
	"tryon/internal/i18n"
)

const maxUploadBytes = 10 << 20

var uploadTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

type uploadResponse struct {
	URL  string          `json:"url"`
	Item *galleryItemDTO `json:"item,omitempty"`
}

// Upload handles POST /uploads: a multipart "file" field holding a garment or
// person photo. The returned URL can be passed as an image input. With
// ?save=true the photo is also kept in the user's gallery.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	account, ok := a.currentAccount(r)
	if !ok {
		a.fail(w, r, domain.ErrUnauthorized)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+(1<<20))
	file, _, err := r.FormFile("file")
	if err != nil {
		a.fail(w, r, errors.Join(domain.ErrInvalidRequest, err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		a.fail(w, r, errors.Join(domain.ErrInvalidRequest, err))
		return
	}
	if len(data) == 0 || len(data) > maxUploadBytes {
		a.fail(w, r, domain.ErrInvalidRequest)
		return
	}
	mimeType := http.DetectContentType(data)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	if !uploadTypes[mimeType] {
		a.fail(w, r, domain.ErrInvalidRequest)
		return
	}

	log := a.Logger.With().Str("user_id", account.UserID).Str("mime", mimeType).Logger()
	url, err := a.Uploader.UploadAsset(r.Context(), data, mimeType)
	if err != nil {
		log.Error().Err(err).Msg("upload: provider upload failed")
		a.error(w, r, http.StatusBadGateway, "UPLOAD_FAILED", i18n.MsgUploadFailed)
		return
	}
	resp := uploadResponse{URL: url}

	if a.Uploads != nil && r.URL.Query().Get("save") == "true" {
		item, err := a.Uploads.SaveUpload(r.Context(), account.UserID, data, mimeType)
		if err != nil {
			// the provider copy is enough to generate with
			log.Warn().Err(err).Msg("upload: gallery copy failed")
		} else {
			resp.Item = &galleryItemDTO{
				ID:           item.ID,
				URL:          item.URL,
				ThumbnailURL: item.ThumbnailURL,
				MimeType:     item.MimeType,
				Type:         string(item.Type),
				CreatedAt:    item.CreatedAt,
			}
		}
	}
	a.json(w, http.StatusOK, resp)
}
