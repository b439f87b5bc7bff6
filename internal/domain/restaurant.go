package domain

// Restaurant is a single search hit returned by the restaurant search tool.
type Restaurant struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Cuisine    string   `json:"cuisine,omitempty"`
	Address    string   `json:"address,omitempty"`
	District   string   `json:"district,omitempty"`
	Province   string   `json:"province,omitempty"`
	Rating     *float64 `json:"rating,omitempty"`
	PriceRange string   `json:"price_range,omitempty"`
	Latitude   float64  `json:"latitude,omitempty"`
	Longitude  float64  `json:"longitude,omitempty"`
	MapsURL    string   `json:"maps_url,omitempty"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// RestaurantQuery is a validated search request. Latitude and Longitude are
// either both set or both nil.
type RestaurantQuery struct {
	Text      string
	Cuisine   string
	Limit     int
	Latitude  *float64
	Longitude *float64
	RadiusKm  float64
}
