// Package resource implements the generic create/update/delete/fetch
// contract every gateway resource goes through.
package resource

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/ashendes/paygate/internal/metrics"
	"github.com/ashendes/paygate/internal/models"
	log "github.com/sirupsen/logrus"
)

// Sender is the part of transport.HTTPService the service depends on.
type Sender interface {
	Send(ctx context.Context, url string, payload interface{}, method string) ([]byte, error)
}

// Service composes resource urls and applies responses. Error responses
// never mutate local state.
type Service struct {
	sender  Sender
	baseURL string
	now     func() time.Time
	logger  log.FieldLogger
}

// NewService builds a Service for apiURL/apiVersion
func NewService(sender Sender, apiURL, apiVersion string, logger log.FieldLogger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	base := strings.TrimRight(apiURL, "/")
	if v := strings.Trim(apiVersion, "/"); v != "" {
		base += "/" + v
	}
	return &Service{sender: sender, baseURL: base, now: time.Now, logger: logger}
}

// SetClock replaces the clock used to stamp fetches.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// URI builds base/<parents>/<path>[/id]. The own id is omitted on POST.
// Only a top-level parent may lack an id (payments/authorize creates the payment).
func (s *Service) URI(r models.Resource, method string) (string, error) {
	var chain []string
	for p := r.Parent(); p != nil; p = p.Parent() {
		switch {
		case p.ID() != "":
			chain = append([]string{p.ResourcePath(), p.ID()}, chain...)
		case p.Parent() == nil:
			chain = append([]string{p.ResourcePath()}, chain...)
		default:
			return "", apierr.Usage("uri", "parent %s of %s has no id", p.ResourcePath(), r.ResourcePath())
		}
	}
	chain = append(chain, r.ResourcePath())
	if method != http.MethodPost && r.ID() != "" {
		chain = append(chain, r.ID())
	}
	return s.baseURL + "/" + strings.Join(chain, "/"), nil
}

// Send performs method on r and returns the raw body.
func (s *Service) Send(ctx context.Context, r models.Resource, method string) ([]byte, error) {
	uri, err := s.URI(r, method)
	if err != nil {
		return nil, err
	}

	var payload interface{}
	if p, ok := r.(models.Payloader); ok && (method == http.MethodPost || method == http.MethodPut) {
		payload = p.Payload()
	}

	started := time.Now()
	body, err := s.sender.Send(ctx, uri, payload, method)
	metrics.ObserveAPICall(method, r.ResourcePath(), outcome(err), started)
	return body, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case apierr.IsTransport(err):
		return "transport_error"
	default:
		return "api_error"
	}
}

func apply(r models.Resource, body []byte) error {
	if h, ok := r.(models.ResponseHandler); ok {
		return h.HandleResponse(body)
	}
	return nil
}

// Create POSTs r and applies the response on success.
func (s *Service) Create(ctx context.Context, r models.Resource) error {
	body, err := s.Send(ctx, r, http.MethodPost)
	if err != nil {
		return err
	}
	return apply(r, body)
}

// Update PUTs r and applies the response on success.
func (s *Service) Update(ctx context.Context, r models.Resource) error {
	if r.ID() == "" {
		return apierr.Usage("update", "%s has no id", r.ResourcePath())
	}
	body, err := s.Send(ctx, r, http.MethodPut)
	if err != nil {
		return err
	}
	return apply(r, body)
}

// Delete removes r remotely and clears its id.
func (s *Service) Delete(ctx context.Context, r models.Resource) error {
	if r.ID() == "" {
		return apierr.Usage("delete", "%s has no id", r.ResourcePath())
	}
	if _, err := s.Send(ctx, r, http.MethodDelete); err != nil {
		return err
	}
	r.SetID("")
	return nil
}

// Fetch GETs r, applies the response and stamps the fetch time.
func (s *Service) Fetch(ctx context.Context, r models.Resource) error {
	if r.ID() == "" && !isSingleton(r) {
		return apierr.Usage("fetch", "%s has no id", r.ResourcePath())
	}
	body, err := s.Send(ctx, r, http.MethodGet)
	if err != nil {
		return err
	}
	if err := apply(r, body); err != nil {
		return err
	}
	r.MarkFetched(s.now())
	return nil
}

// GetResource fetches r once: only when it has an id and was never fetched.
func (s *Service) GetResource(ctx context.Context, r models.Resource) error {
	if r.NeedsFetch() || (isSingleton(r) && r.FetchedAt().IsZero()) {
		return s.Fetch(ctx, r)
	}
	return nil
}

func isSingleton(r models.Resource) bool {
	sg, ok := r.(models.Singleton)
	return ok && sg.IsSingleton()
}

// GetResourceIDFromURL extracts the id tagged with tag from url.
func (s *Service) GetResourceIDFromURL(url, tag string) (string, error) {
	return models.ResourceIDFromURL(url, tag)
}
