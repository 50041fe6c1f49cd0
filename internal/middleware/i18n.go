package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"tryon/internal/i18n"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// edge proxies that already know the caller's country
var countryHeaders = []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"}

// I18N stores the request locale and, when known, the caller's country in
// the context. The locale is echoed as Content-Language.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			locale := detectLocale(r, defaultLocale, country)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, country)
			}
			w.Header().Set("Content-Language", locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// detectLocale prefers explicit headers, then the country, then fallback.
// Indonesian callers get "id", everyone else "en".
func detectLocale(r *http.Request, fallback, country string) string {
	for _, h := range []string{"X-Locale", "Accept-Language"} {
		if v := i18n.Match(r.Header.Get(h)); v != "" {
			return v
		}
	}
	switch {
	case country == "ID":
		return "id"
	case country != "":
		return "en"
	default:
		return i18n.Normalize(fallback)
	}
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok && v != "" {
		return v
	}
	return "en"
}

// CountryFromContext returns the ISO country code stored by I18N.
func CountryFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CountryKey).(string)
	return v
}

// ResolveCountry tries proxy headers, then an explicit region in the
// language headers, then the IP lookup. It returns "" when nothing matches.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	for _, h := range countryHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return strings.ToUpper(v)
		}
	}
	for _, h := range []string{"X-Locale", "Accept-Language"} {
		if region := headerRegion(r.Header.Get(h)); region != "" {
			return region
		}
	}
	if lookup == nil {
		return ""
	}
	country, err := lookup(clientIP(r))
	if err != nil {
		return ""
	}
	return strings.ToUpper(country)
}

// headerRegion returns the country of the first tag that names one
// explicitly. A bare "id" counts as Indonesia.
func headerRegion(header string) string {
	tags, _, err := language.ParseAcceptLanguage(strings.ReplaceAll(header, "_", "-"))
	if err != nil {
		return ""
	}
	for _, tag := range tags {
		base, _, region := tag.Raw()
		if region.IsCountry() {
			return region.String()
		}
		if base.String() == "id" {
			return "ID"
		}
	}
	return ""
}
