package tools

import (
	"strings"

	"taste-agent/internal/domain"
)

// Name is one of the tool names the registry knows how to dispatch.
type Name string

const (
	UpdateTasteProfile Name = "update_user_taste_profile"
	GetTasteProfile    Name = "get_user_taste_profile"
	SearchRestaurants  Name = "search_restaurants"
)

const (
	defaultMaxResults = 5
	maxMaxResults     = 20
	defaultRadiusKm   = 5.0
)

var updateTasteProfileDescription = strings.Join([]string{
	"Update the user's food taste profile based on the conversation.",
	"",
	"Use this when the user expresses preferences about:",
	"- Cuisines they like or dislike (Vietnamese, Japanese, Korean, ...)",
	"- Spice tolerance (mild, medium, hot, extreme)",
	"- Dietary restrictions (vegetarian, vegan, halal, gluten-free)",
	"- Allergies (peanuts, shellfish, dairy, ...)",
	"- Price preferences (budget, mid-range, premium)",
	"- Specific dishes they love or hate",
	"",
	"Examples:",
	`- "Tôi thích ăn cay" -> category="spice_level", value="hot", sentiment="love"`,
	`- "Tôi ăn chay" -> category="dietary", value="vegetarian", sentiment="neutral"`,
	`- "Không thích hải sản" -> category="cuisine", value="seafood", sentiment="dislike"`,
}, "\n")

var searchRestaurantsDescription = strings.Join([]string{
	"Search for restaurants based on criteria.",
	"",
	"Use this when the user asks to:",
	"- Find restaurants nearby",
	"- Search for a specific cuisine type",
	"- Look for restaurants in a specific area",
	"- Find restaurants matching their preferences",
}, "\n")

var getTasteProfileDescription = strings.Join([]string{
	"Retrieve the user's current taste profile.",
	"",
	"Use this when you need to:",
	"- Check what the user likes or dislikes before making recommendations",
	"- Understand the user's dietary restrictions",
	"- Verify the user's preferences",
	"",
	"Returns the complete taste profile including cuisines, spice level and dietary restrictions.",
}, "\n")

func catalog() []domain.ToolSchema {
	return []domain.ToolSchema{
		{
			Name:        string(UpdateTasteProfile),
			Description: updateTasteProfileDescription,
			Parameters: domain.ParameterSchema{
				Type: "object",
				Properties: map[string]domain.PropertySchema{
					"category": {
						Type:        "string",
						Description: "Category of preference to update",
						Enum:        domain.Categories(),
					},
					"value": {
						Type:        "string",
						Description: "The preference value (e.g. 'Vietnamese', 'hot', 'vegetarian')",
					},
					"sentiment": {
						Type:        "string",
						Description: "User's sentiment toward this preference",
						Enum:        domain.Sentiments(),
					},
				},
				Required: []string{"category", "value", "sentiment"},
			},
		},
		{
			Name:        string(SearchRestaurants),
			Description: searchRestaurantsDescription,
			Parameters: domain.ParameterSchema{
				Type: "object",
				Properties: map[string]domain.PropertySchema{
					"query": {
						Type:        "string",
						Description: "Search query (e.g. 'phở', 'Japanese restaurant')",
					},
					"cuisine": {
						Type:        "string",
						Description: "Cuisine type filter (optional)",
					},
					"max_results": {
						Type:        "integer",
						Description: "Maximum number of results to return",
						Default:     defaultMaxResults,
					},
					"latitude": {
						Type:        "number",
						Description: "User's latitude for nearby search (optional)",
					},
					"longitude": {
						Type:        "number",
						Description: "User's longitude for nearby search (optional)",
					},
					"radius_km": {
						Type:        "number",
						Description: "Search radius in kilometers",
						Default:     defaultRadiusKm,
					},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        string(GetTasteProfile),
			Description: getTasteProfileDescription,
			Parameters: domain.ParameterSchema{
				Type: "object",
				Properties: map[string]domain.PropertySchema{
					"user_id": {
						Type:        "string",
						Description: "User identifier",
					},
				},
				Required: []string{"user_id"},
			},
		},
	}
}
