// Package i18n holds the short user-facing strings returned by the API and
// sent in notification emails.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	MsgUnauthorized        = "unauthorized"
	MsgInvalidRequest      = "invalid_request"
	MsgInsufficientCredits = "insufficient_credits"
	MsgGenerationFailed    = "generation_failed"
	MsgProviderUnavailable = "provider_unavailable"
	MsgTaskNotFound        = "task_not_found"
	MsgPollTimeout         = "poll_timeout"
	MsgPartialBatch        = "partial_batch"
	MsgFallbackUsed        = "fallback_used"
	MsgNotCharged          = "not_charged"
	MsgUploadFailed        = "upload_failed"
	MsgInternal            = "internal"
	MsgRateLimited         = "rate_limited"

	MsgReadySubject = "ready_subject"
	MsgReadyBody    = "ready_body"
	MsgFailedTitle  = "failed_subject"
	MsgFailedBody   = "failed_body"
)

var (
	english    = language.English
	indonesian = language.Indonesian

	supported = []language.Tag{english, indonesian}
	matcher   = language.NewMatcher(supported)
)

var entries = map[string][2]string{
	MsgUnauthorized:        {"Please sign in to continue.", "Silakan masuk untuk melanjutkan."},
	MsgInvalidRequest:      {"Some of the details are invalid.", "Beberapa data tidak valid."},
	MsgInsufficientCredits: {"Not enough credits. You need %d, you have %d.", "Kredit tidak cukup. Dibutuhkan %d, tersedia %d."},
	MsgGenerationFailed:    {"Generation failed. Please try again.", "Pembuatan gagal. Silakan coba lagi."},
	MsgProviderUnavailable: {"The generator is busy. Please try again shortly.", "Generator sedang sibuk. Silakan coba lagi sebentar lagi."},
	MsgTaskNotFound:        {"Task not found.", "Tugas tidak ditemukan."},
	MsgPollTimeout:         {"This is taking longer than usual. Check your gallery later.", "Proses lebih lama dari biasanya. Cek galeri Anda nanti."},
	MsgPartialBatch:        {"Only %d of %d generations started.", "Hanya %d dari %d pembuatan yang dimulai."},
	MsgFallbackUsed:        {"The selected model was busy, so the standard model was used.", "Model pilihan sedang sibuk, jadi model standar yang dipakai."},
	MsgNotCharged:          {"Your generation started.", "Pembuatan Anda sudah dimulai."},
	MsgUploadFailed:        {"Upload failed. Please try again.", "Unggahan gagal. Silakan coba lagi."},
	MsgInternal:            {"Something went wrong.", "Terjadi kesalahan."},
	MsgRateLimited:         {"Too many requests. Slow down a little.", "Terlalu banyak permintaan. Mohon tunggu sebentar."},
	MsgReadySubject:        {"Your %s is ready", "%s Anda sudah siap"},
	MsgReadyBody:           {"Your %s finished and is saved in your gallery.", "%s Anda sudah selesai dan tersimpan di galeri."},
	MsgFailedTitle:         {"Your %s did not finish", "%s Anda tidak selesai"},
	MsgFailedBody:          {"Your %s could not be generated: %s", "%s Anda gagal dibuat: %s"},
}

var cat = buildCatalog()

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(english))
	for key, texts := range entries {
		_ = b.SetString(english, key, texts[0])
		_ = b.SetString(indonesian, key, texts[1])
	}
	return b
}

// Match picks a supported locale ("en" or "id") from a list of language
// preferences such as an Accept-Language header value. Unknown input yields "".
func Match(prefs ...string) string {
	var tags []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	if len(tags) == 0 {
		return ""
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return ""
	}
	return Code(supported[idx])
}

// Code returns the short code used in contexts and payloads.
func Code(tag language.Tag) string {
	base, _ := tag.Base()
	if base.String() == "id" {
		return "id"
	}
	return "en"
}

// Normalize maps any locale string to a supported code, defaulting to "en".
func Normalize(locale string) string {
	if m := Match(locale); m != "" {
		return m
	}
	return "en"
}

func tagFor(locale string) language.Tag {
	if Normalize(locale) == "id" {
		return indonesian
	}
	return english
}

// T renders the message key for locale.
func T(locale, key string, args ...any) string {
	p := message.NewPrinter(tagFor(locale), message.Catalog(cat))
	return p.Sprintf(key, args...)
}

// KindLabel is the localized noun for a generation kind.
func KindLabel(locale, kind string) string {
	if Normalize(locale) == "id" {
		if kind == "video" {
			return "Video"
		}
		return "Gambar"
	}
	if kind == "video" {
		return "video"
	}
	return "image"
}
