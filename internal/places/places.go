// Package places resolves the Google review destination for a business and
// enriches it with live place data. A missing API key or a failed lookup
// degrades to the bare review URL; the redirect flow never breaks on
// Google's availability.
package places

import (
	"context"
	"net/url"

	"googlemaps.github.io/maps"

	"snapreview/internal/constants"
	"snapreview/internal/models"
	errs "snapreview/pkg/errors"
	"snapreview/pkg/logging"
)

const reviewBaseURL = "https://search.google.com/local/writereview"

// ReviewTarget is where a customer lands after copying their feedback.
type ReviewTarget struct {
	URL         string  `json:"url"`
	PlaceID     string  `json:"place_id"`
	Rating      float32 `json:"rating,omitempty"`
	ReviewCount int     `json:"review_count,omitempty"`
	Operational bool    `json:"operational"`
	Enriched    bool    `json:"enriched"`
}

type placesClient interface {
	PlaceDetails(ctx context.Context, r *maps.PlaceDetailsRequest) (maps.PlaceDetailsResult, error)
}

// Resolver builds review links and optionally decorates them with place
// details.
type Resolver struct {
	client placesClient
	logger *logging.Logger
}

// NewResolver returns a resolver. With an empty API key the resolver still
// works; it just skips enrichment.
func NewResolver(apiKey string, logger *logging.Logger) (*Resolver, error) {
	r := &Resolver{logger: logger.Component("places")}
	if apiKey == "" {
		return r, nil
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, errs.NewExternal("places.NewResolver", "googlemaps", "failed to create maps client", err)
	}
	r.client = client
	return r, nil
}

// ReviewURL builds the write-review link for a place ID.
func ReviewURL(placeID string) string {
	return reviewBaseURL + "?placeid=" + url.QueryEscape(placeID)
}

// Resolve returns the review target for a business. Businesses without a
// Google place ID get an empty target and no error; callers decide whether
// that is a problem.
func (r *Resolver) Resolve(ctx context.Context, b *models.Business) (*ReviewTarget, error) {
	if b.GooglePlaceID == nil || *b.GooglePlaceID == "" {
		return nil, nil
	}
	placeID := *b.GooglePlaceID

	target := &ReviewTarget{URL: ReviewURL(placeID), PlaceID: placeID}
	if r.client == nil {
		return target, nil
	}

	cctx, cancel := context.WithTimeout(ctx, constants.PlacesRequestTimeout)
	defer cancel()

	details, err := r.client.PlaceDetails(cctx, &maps.PlaceDetailsRequest{
		PlaceID: placeID,
		Fields: []maps.PlaceDetailsFieldMask{
			maps.PlaceDetailsFieldMaskName,
			maps.PlaceDetailsFieldMaskUserRatingsTotal,
			maps.PlaceDetailsFieldMaskBusinessStatus,
		},
	})
	if err != nil {
		// Enrichment is best effort.
		r.logger.Warn("place details lookup failed", "place_id", placeID, "error", err)
		return target, nil
	}

	target.Rating = details.Rating
	target.ReviewCount = details.UserRatingsTotal
	target.Operational = details.BusinessStatus == "OPERATIONAL"
	target.Enriched = true
	return target, nil
}
