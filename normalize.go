package nostrmux

import (
	"net/url"
	"strings"

	"github.com/yanun0323/errors"
)

// NormalizeRelayURL canonicalizes a relay URL: the scheme and host are
// lowercased, default ports and trailing slashes are stripped, and the
// scheme must be ws or wss. All pool operations key on the normalized form,
// so two spellings of the same relay collapse to one record.
func NormalizeRelayURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Wrapf(err, "parse relay url %q", raw)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "ws" && scheme != "wss" {
		return "", errors.Errorf("relay url %q: scheme must be ws or wss", raw)
	}
	if u.Host == "" {
		return "", errors.Errorf("relay url %q: missing host", raw)
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "ws" && port == "80") || (scheme == "wss" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}

	path := strings.TrimRight(u.Path, "/")

	normalized := scheme + "://" + host + path
	if u.RawQuery != "" {
		normalized += "?" + u.RawQuery
	}
	return normalized, nil
}
