package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"tryon/internal/credits"
	"tryon/internal/domain"
	"tryon/internal/i18n"
	"tryon/internal/infra"
	"tryon/internal/middleware"
	"tryon/internal/orchestrator"
	"tryon/internal/providers/kie"
	"tryon/internal/queue"
)

// Generator starts generation tasks.
type Generator interface {
	SubmitImage(ctx context.Context, req orchestrator.ImageRequest) (*orchestrator.Submission, error)
	SubmitVideo(ctx context.Context, req orchestrator.VideoRequest) (*orchestrator.Submission, error)
}

// BalanceReader reports an account's credits.
type BalanceReader interface {
	Balance(ctx context.Context, account domain.Account) (credits.Balance, error)
}

// StatusReader reads live provider state.
type StatusReader interface {
	QueryStatus(ctx context.Context, taskID string) (kie.Status, error)
}

// AssetUploader hands reference images to the provider.
type AssetUploader interface {
	UploadAsset(ctx context.Context, data []byte, mimeType string) (string, error)
}

// UploadSaver keeps a copy of an upload in the user's gallery.
type UploadSaver interface {
	SaveUpload(ctx context.Context, ownerID string, data []byte, mimeType string) (*domain.GalleryItem, error)
}

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Config    *infra.Config
	Logger    zerolog.Logger
	Generator Generator
	Balances  BalanceReader
	Tasks     domain.TaskRepository
	Gallery   domain.GalleryRepository
	Status    StatusReader
	Uploader  AssetUploader
	Uploads   UploadSaver
	Publisher queue.Publisher
	DB        Pinger
	Country   middleware.CountryLookup
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Required  *int   `json:"required,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func (a *App) error(w http.ResponseWriter, r *http.Request, status int, code, key string, args ...any) {
	a.json(w, status, errorResponse{
		Error: i18n.T(middleware.LocaleFromContext(r.Context()), key, args...),
		Code:  code,
	})
}

// fail maps a domain error to a short localized response. Details are logged only.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	log := a.Logger.With().Str("request_id", middleware.RequestIDFromContext(r.Context())).Logger()

	var insufficient *credits.InsufficientCreditsError
	switch {
	case errors.As(err, &insufficient):
		a.json(w, http.StatusPaymentRequired, errorResponse{
			Error:     i18n.T(locale, i18n.MsgInsufficientCredits, insufficient.Required, insufficient.Available),
			Code:      "INSUFFICIENT_CREDITS",
			Required:  &insufficient.Required,
			Available: &insufficient.Available,
		})
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", i18n.MsgUnauthorized)
	case errors.Is(err, domain.ErrInvalidRequest):
		log.Info().Err(err).Msg("rejected request")
		a.error(w, r, http.StatusBadRequest, "INVALID_REQUEST", i18n.MsgInvalidRequest)
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, r, http.StatusNotFound, "NOT_FOUND", i18n.MsgTaskNotFound)
	case errors.Is(err, domain.ErrProviderFailure):
		log.Error().Err(err).Msg("provider failure")
		a.error(w, r, http.StatusBadGateway, "PROVIDER_FAILURE", i18n.MsgProviderUnavailable)
	case errors.Is(err, credits.ErrLedgerUnavailable):
		log.Error().Err(err).Msg("credit ledger unavailable")
		a.error(w, r, http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE", i18n.MsgInternal)
	case errors.Is(err, context.Canceled):
		log.Debug().Msg("client went away")
	default:
		log.Error().Err(err).Msg("unhandled error")
		a.error(w, r, http.StatusInternalServerError, "INTERNAL", i18n.MsgInternal)
	}
}

func (a *App) currentAccount(r *http.Request) (domain.Account, bool) {
	return middleware.AccountFromContext(r.Context())
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return errors.Join(domain.ErrInvalidRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return errors.Join(domain.ErrInvalidRequest, err)
	}
	return nil
}
