package icon

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"

	"github.com/3leaps/appimage-installer/internal/model"
)

const (
	DefaultRemoteTimeout = 4 * time.Second
	maxRemoteIconBytes   = 2 << 20
)

// DefaultRemoteTemplates point at a public icon theme. {name} is replaced
// with each candidate icon name.
var DefaultRemoteTemplates = []string{
	"https://raw.githubusercontent.com/PapirusDevelopmentTeam/papirus-icon-theme/master/Papirus/64x64/apps/{name}.svg",
}

// Remote fetches icons for well-known applications over HTTP.
type Remote struct {
	client    *resty.Client
	templates []string
	timeout   time.Duration
}

// NewRemote returns a fetcher; a nil *Remote skips the remote step.
func NewRemote(templates []string, timeout time.Duration, userAgent string) *Remote {
	if len(templates) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 1
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 500 * time.Millisecond
	retryClient.Logger = nil

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetTransport(&retryablehttp.RoundTripper{Client: retryClient})

	return &Remote{client: client, templates: templates, timeout: timeout}
}

// Fetch tries every template with every name and returns the first payload
// served with a 200 response that accept takes. A nil accept takes any
// payload. It never outlives its own timeout, and cancelling ctx stops it
// early.
func (r *Remote) Fetch(ctx context.Context, names []string, accept func(model.IconCandidate) error) (model.IconCandidate, error) {
	if r == nil {
		return model.IconCandidate{}, fmt.Errorf("remote lookup disabled")
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var lastErr error
	for _, tmpl := range r.templates {
		for _, name := range names {
			if name == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return model.IconCandidate{}, err
			}
			u := strings.ReplaceAll(tmpl, "{name}", url.PathEscape(name))
			resp, err := r.client.R().SetContext(ctx).Get(u)
			if err != nil {
				lastErr = err
				log.Debugf("remote icon %s: %v", u, err)
				continue
			}
			if resp.StatusCode() != http.StatusOK {
				lastErr = fmt.Errorf("GET %s: %s", u, resp.Status())
				continue
			}
			body := resp.Body()
			if len(body) == 0 || len(body) > maxRemoteIconBytes {
				lastErr = fmt.Errorf("GET %s: unusable body of %d bytes", u, len(body))
				continue
			}
			cand := model.IconCandidate{Bytes: body, Provenance: model.ProvenanceRemoteFallback, Origin: u}
			if accept != nil {
				if err := accept(cand); err != nil {
					lastErr = fmt.Errorf("GET %s: %w", u, err)
					log.Debugf("remote icon %s rejected: %v", u, err)
					continue
				}
			}
			return cand, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no icon name to look up")
	}
	return model.IconCandidate{}, lastErr
}
