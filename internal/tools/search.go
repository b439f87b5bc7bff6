package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taste-agent/internal/domain"
)

type searchArgs struct {
	Query      string   `json:"query"`
	Cuisine    string   `json:"cuisine"`
	MaxResults int      `json:"max_results"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	RadiusKm   float64  `json:"radius_km"`
}

// SearchPayload is the result payload of search_restaurants.
type SearchPayload struct {
	Results    []domain.Restaurant `json:"results"`
	TotalFound int                 `json:"total_found"`
}

func searchHandler(searcher RestaurantSearcher) handlerFunc {
	return func(ctx context.Context, raw map[string]any) (domain.ToolOutcome, error) {
		if searcher == nil {
			return domain.ToolOutcome{}, ErrSearchUnavailable
		}
		var args searchArgs
		if err := decodeArgs(raw, &args); err != nil {
			return domain.ToolOutcome{}, err
		}
		q, err := args.query()
		if err != nil {
			return domain.ToolOutcome{}, err
		}

		results, err := searcher.SearchRestaurants(ctx, q)
		if err != nil {
			return domain.ToolOutcome{}, fmt.Errorf("search restaurants: %w", err)
		}
		if results == nil {
			results = []domain.Restaurant{}
		}
		return domain.ToolOutcome{
			Success: true,
			Payload: SearchPayload{Results: results, TotalFound: len(results)},
		}, nil
	}
}

func (a searchArgs) query() (domain.RestaurantQuery, error) {
	q := domain.RestaurantQuery{
		Text:     strings.TrimSpace(a.Query),
		Cuisine:  strings.TrimSpace(a.Cuisine),
		Limit:    a.MaxResults,
		RadiusKm: a.RadiusKm,
	}
	if q.Text == "" && q.Cuisine == "" {
		return q, errors.New("query is required")
	}
	switch {
	case q.Limit <= 0:
		q.Limit = defaultMaxResults
	case q.Limit > maxMaxResults:
		q.Limit = maxMaxResults
	}
	if q.RadiusKm <= 0 {
		q.RadiusKm = defaultRadiusKm
	}
	if (a.Latitude == nil) != (a.Longitude == nil) {
		return q, errors.New("latitude and longitude must be given together")
	}
	if a.Latitude != nil {
		if *a.Latitude < -90 || *a.Latitude > 90 || *a.Longitude < -180 || *a.Longitude > 180 {
			return q, errors.New("coordinates out of range")
		}
		q.Latitude, q.Longitude = a.Latitude, a.Longitude
	}
	return q, nil
}
