package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"taste-agent/internal/domain"
	"taste-agent/internal/store"
)

type fakeSearcher struct {
	lastQuery domain.RestaurantQuery
	calls     int
	results   []domain.Restaurant
	err       error
}

func (f *fakeSearcher) SearchRestaurants(_ context.Context, q domain.RestaurantQuery) ([]domain.Restaurant, error) {
	f.calls++
	f.lastQuery = q
	return f.results, f.err
}

func newTestRegistry(t *testing.T, searcher RestaurantSearcher) (*Registry, *store.ProfileStore) {
	t.Helper()
	profiles := store.NewProfileStore()
	r, err := NewRegistry(profiles, searcher)
	require.NoError(t, err)
	return r, profiles
}

func TestNewRegistryRequiresProfileStore(t *testing.T) {
	_, err := NewRegistry(nil, nil)
	require.Error(t, err)
}

func TestSchemasCatalog(t *testing.T) {
	r, _ := newTestRegistry(t, nil)

	schemas := r.Schemas()
	require.Len(t, schemas, 3)

	names := []string{schemas[0].Name, schemas[1].Name, schemas[2].Name}
	require.Equal(t, []string{"update_user_taste_profile", "search_restaurants", "get_user_taste_profile"}, names)

	update := schemas[0]
	require.Equal(t, "object", update.Parameters.Type)
	require.Equal(t, []string{"category", "value", "sentiment"}, update.Parameters.Required)
	require.Equal(t, []string{"cuisine", "spice_level", "dietary", "allergy", "price", "dish"}, update.Parameters.Properties["category"].Enum)
	require.Equal(t, []string{"love", "like", "neutral", "dislike", "hate"}, update.Parameters.Properties["sentiment"].Enum)

	search := schemas[1]
	require.Equal(t, []string{"query"}, search.Parameters.Required)
	require.Equal(t, 5, search.Parameters.Properties["max_results"].Default)
	require.Equal(t, 5.0, search.Parameters.Properties["radius_km"].Default)
}

func TestIsUserScoped(t *testing.T) {
	r, _ := newTestRegistry(t, nil)

	require.True(t, r.IsUserScoped("update_user_taste_profile"))
	require.True(t, r.IsUserScoped("get_user_taste_profile"))
	require.False(t, r.IsUserScoped("search_restaurants"))
	require.False(t, r.IsUserScoped("order_food"))
}

func TestExecuteUnknownTool(t *testing.T) {
	r, _ := newTestRegistry(t, nil)

	out := r.Execute(context.Background(), "order_food", map[string]any{"dish": "phở"})
	require.False(t, out.Success)
	require.Equal(t, "Unknown tool: order_food", out.Error)
}

func TestExecuteUpdateProfile(t *testing.T) {
	r, profiles := newTestRegistry(t, nil)

	out := r.Execute(context.Background(), "update_user_taste_profile", map[string]any{
		"user_id":   "u1",
		"category":  "dish",
		"value":     "phở",
		"sentiment": "like",
	})
	require.True(t, out.Success, out.Error)
	require.Equal(t, "Added phở to favorite dishes", out.Message)
	require.Equal(t, []string{"phở"}, profiles.Get("u1").FavoriteDishes)

	payload, ok := out.Payload.(domain.TasteProfile)
	require.True(t, ok)
	require.Equal(t, []string{"phở"}, payload.FavoriteDishes)
}

func TestExecuteUpdateProfileInvalidArguments(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{
			name:    "unknown category",
			args:    map[string]any{"user_id": "u1", "category": "drinks", "value": "tea", "sentiment": "like"},
			wantErr: "unknown category",
		},
		{
			name:    "unknown sentiment",
			args:    map[string]any{"user_id": "u1", "category": "dish", "value": "tea", "sentiment": "adore"},
			wantErr: "unknown sentiment",
		},
		{
			name:    "missing user",
			args:    map[string]any{"category": "dish", "value": "tea", "sentiment": "like"},
			wantErr: "user_id is required",
		},
		{
			name:    "blank value",
			args:    map[string]any{"user_id": "u1", "category": "dish", "value": " ", "sentiment": "like"},
			wantErr: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, profiles := newTestRegistry(t, nil)

			out := r.Execute(context.Background(), "update_user_taste_profile", tt.args)
			require.False(t, out.Success)
			require.Contains(t, out.Error, tt.wantErr)
			require.Equal(t, "No preferences", profiles.Get("u1").ContextSummary())
		})
	}
}

func TestExecuteGetProfile(t *testing.T) {
	r, profiles := newTestRegistry(t, nil)
	_, err := profiles.Update("u1", domain.CategorySpice, "mild", domain.SentimentNeutral)
	require.NoError(t, err)

	out := r.Execute(context.Background(), "get_user_taste_profile", map[string]any{"user_id": "u1"})
	require.True(t, out.Success)
	require.Equal(t, "mild", out.Payload.(domain.TasteProfile).SpiceLevel)

	out = r.Execute(context.Background(), "get_user_taste_profile", nil)
	require.False(t, out.Success)
}

func TestExecuteSearch(t *testing.T) {
	rating := 4.5
	searcher := &fakeSearcher{results: []domain.Restaurant{{ID: "r1", Name: "Phở Thìn", Rating: &rating}}}
	r, _ := newTestRegistry(t, searcher)

	out := r.Execute(context.Background(), "search_restaurants", map[string]any{
		"query":       "phở",
		"max_results": "3",
		"latitude":    21.02,
		"longitude":   105.85,
	})
	require.True(t, out.Success, out.Error)

	payload, ok := out.Payload.(SearchPayload)
	require.True(t, ok)
	require.Equal(t, 1, payload.TotalFound)
	require.Equal(t, "Phở Thìn", payload.Results[0].Name)

	require.Equal(t, "phở", searcher.lastQuery.Text)
	require.Equal(t, 3, searcher.lastQuery.Limit)
	require.Equal(t, 5.0, searcher.lastQuery.RadiusKm)
	require.NotNil(t, searcher.lastQuery.Latitude)
	require.InDelta(t, 21.02, *searcher.lastQuery.Latitude, 1e-9)
}

func TestExecuteSearchDefaultsAndValidation(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		searcher := &fakeSearcher{}
		r, _ := newTestRegistry(t, searcher)

		out := r.Execute(context.Background(), "search_restaurants", map[string]any{"query": "bún chả"})
		require.True(t, out.Success)
		require.Equal(t, 5, searcher.lastQuery.Limit)
		require.Nil(t, searcher.lastQuery.Latitude)
		require.Equal(t, SearchPayload{Results: []domain.Restaurant{}, TotalFound: 0}, out.Payload)
	})

	t.Run("max results clamped", func(t *testing.T) {
		searcher := &fakeSearcher{}
		r, _ := newTestRegistry(t, searcher)

		r.Execute(context.Background(), "search_restaurants", map[string]any{"query": "bún", "max_results": 500})
		require.Equal(t, 20, searcher.lastQuery.Limit)
	})

	t.Run("half a coordinate", func(t *testing.T) {
		searcher := &fakeSearcher{}
		r, _ := newTestRegistry(t, searcher)

		out := r.Execute(context.Background(), "search_restaurants", map[string]any{"query": "bún", "latitude": 21.0})
		require.False(t, out.Success)
		require.Contains(t, out.Error, "together")
		require.Zero(t, searcher.calls)
	})

	t.Run("missing query", func(t *testing.T) {
		searcher := &fakeSearcher{}
		r, _ := newTestRegistry(t, searcher)

		out := r.Execute(context.Background(), "search_restaurants", map[string]any{})
		require.False(t, out.Success)
		require.Zero(t, searcher.calls)
	})
}

func TestExecuteSearchFailures(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		r, _ := newTestRegistry(t, nil)

		out := r.Execute(context.Background(), "search_restaurants", map[string]any{"query": "phở"})
		require.False(t, out.Success)
		require.Equal(t, ErrSearchUnavailable.Error(), out.Error)
	})

	t.Run("backend error", func(t *testing.T) {
		searcher := &fakeSearcher{err: errors.New("throttled")}
		r, _ := newTestRegistry(t, searcher)

		out := r.Execute(context.Background(), "search_restaurants", map[string]any{"query": "phở"})
		require.False(t, out.Success)
		require.Contains(t, out.Error, "throttled")
	})
}
