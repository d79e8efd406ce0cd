package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

// SignatureHeader carries the provider's HMAC-SHA1 request signature.
const SignatureHeader = "X-Twilio-Signature"

// ValidSignature checks the request signature: base64(HMAC-SHA1(secret,
// url + sorted form key/value pairs)).
func ValidSignature(r *http.Request, secret, webhookURL string) bool {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	expected := Sign(secret, webhookURL, r.PostForm)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// Sign computes the signature for a webhook URL and its form parameters.
func Sign(secret, webhookURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(webhookURL)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(payload.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// RequireSignature rejects webhooks without a valid signature. With an empty
// secret every request passes. publicBaseURL, when set, replaces the scheme
// and host seen by the server, for deployments behind a proxy.
func RequireSignature(secret, publicBaseURL string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	publicBaseURL = strings.TrimRight(publicBaseURL, "/")
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			webhookURL := buildAbsoluteURL(r)
			if publicBaseURL != "" {
				webhookURL = publicBaseURL + r.URL.RequestURI()
			}
			if !ValidSignature(r, secret, webhookURL) {
				logger.Warn("rejected webhook with invalid signature", "path", r.URL.Path, "url", webhookURL)
				http.Error(w, "invalid signature", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
