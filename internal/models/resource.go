package models

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/shopspring/decimal"
)

// FetchState is the lifecycle of a resource instance as seen by the client
type FetchState int

const (
	// Unpersisted resources have no remote id yet
	Unpersisted FetchState = iota
	// Persisted resources have an id but were never fetched
	Persisted
	// Fetched resources were refreshed from the gateway at least once
	Fetched
)

func (s FetchState) String() string {
	switch s {
	case Persisted:
		return "persisted"
	case Fetched:
		return "fetched"
	default:
		return "unpersisted"
	}
}

// Meta holds identity and fetch bookkeeping shared by every resource.
type Meta struct {
	id        string
	state     FetchState
	fetchedAt time.Time
}

func (m *Meta) ID() string             { return m.id }
func (m *Meta) FetchState() FetchState { return m.state }
func (m *Meta) FetchedAt() time.Time   { return m.fetchedAt }

// SetID assigns the remote identity. Clearing it returns the resource to Unpersisted.
func (m *Meta) SetID(id string) {
	m.id = id
	switch {
	case id == "":
		m.state = Unpersisted
		m.fetchedAt = time.Time{}
	case m.state == Unpersisted:
		m.state = Persisted
	}
}

// MarkFetched records a successful GET.
func (m *Meta) MarkFetched(at time.Time) {
	m.fetchedAt = at
	if m.id != "" {
		m.state = Fetched
	}
}

// NeedsFetch is true for a resource with an id that was never fetched
func (m *Meta) NeedsFetch() bool {
	return m.state == Persisted
}

// Identity is implemented by every type embedding Meta.
type Identity interface {
	ID() string
	SetID(id string)
	FetchState() FetchState
	FetchedAt() time.Time
	MarkFetched(at time.Time)
	NeedsFetch() bool
}

// Resource is anything addressable on the gateway.
type Resource interface {
	Identity
	ResourcePath() string
	// Parent returns the resource this one is nested under, or nil for top level.
	Parent() Resource
}

// Payloader resources send a JSON body on POST and PUT.
type Payloader interface {
	Payload() interface{}
}

// ResponseHandler resources apply a successful JSON response onto themselves.
type ResponseHandler interface {
	HandleResponse(body []byte) error
}

// Singleton resources are addressed by their path alone and may be fetched
// without an id.
type Singleton interface {
	IsSingleton() bool
}

// Ref is a lightweight addressable stand-in used to compose parent paths
// without holding pointers back up the aggregate.
type Ref struct {
	Meta
	path   string
	parent Resource
}

// NewRef builds a reference to path/id under parent.
func NewRef(path, id string, parent Resource) *Ref {
	r := &Ref{path: path, parent: parent}
	r.SetID(id)
	return r
}

func (r *Ref) ResourcePath() string { return r.path }
func (r *Ref) Parent() Resource     { return r.parent }

// PaymentRef addresses a payment by id only.
func PaymentRef(paymentID string) *Ref {
	return NewRef("payments", paymentID, nil)
}

// ResourceIDFromURL extracts the last "<s|p>-<tag>-<id>" path segment from a url.
func ResourceIDFromURL(url, tag string) (string, error) {
	re, err := regexp.Compile(`^[sp]-` + regexp.QuoteMeta(tag) + `-[a-zA-Z0-9]+$`)
	if err != nil {
		return "", apierr.Usage("resource id", "invalid tag %q", tag)
	}
	segments := strings.Split(url, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if re.MatchString(segments[i]) {
			return segments[i], nil
		}
	}
	return "", apierr.Usage("resource id", "Id not found!")
}

func jsonAmount(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := json.Number(d.Decimal.String())
	return &n
}

// NullAmount wraps a decimal as a set nullable amount
func NullAmount(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
