// Package summary turns new transcript text into the rolling call artifacts:
// a bullet summary with a CRM paragraph, an updated client history digest,
// and promotion recommendations drawn from the catalog.
package summary

import (
	"context"
	"errors"

	"github.com/sjawhar/callscribe/internal/session"
)

// ErrMalformedOutput means the model answered but the call summary could
// not be recovered from its reply.
var ErrMalformedOutput = errors.New("malformed summarizer output")

// CatalogEntry is one promotion the recommender may choose from.
type CatalogEntry struct {
	PromoID     string `json:"promo_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Conditions  string `json:"conditions,omitempty"`
}

type Input struct {
	CallID          string
	Transcript      string
	CustomerProfile string
	History         string
	// CurrentSummary is the existing rolling summary rendered with RenderText.
	CurrentSummary string
	Catalog        []CatalogEntry
}

type Result struct {
	CallSummary session.CallSummary
	History     string
	Promotions  session.Promotions
}

type Summarizer interface {
	Summarize(ctx context.Context, in Input) (Result, error)
}
