package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category is the profile dimension an update targets.
type Category string

const (
	CategoryCuisine Category = "cuisine"
	CategorySpice   Category = "spice_level"
	CategoryDietary Category = "dietary"
	CategoryAllergy Category = "allergy"
	CategoryPrice   Category = "price"
	CategoryDish    Category = "dish"
)

// Sentiment is how the user feels about the value being recorded.
type Sentiment string

const (
	SentimentLove    Sentiment = "love"
	SentimentLike    Sentiment = "like"
	SentimentNeutral Sentiment = "neutral"
	SentimentDislike Sentiment = "dislike"
	SentimentHate    Sentiment = "hate"
)

var (
	categories = []Category{CategoryCuisine, CategorySpice, CategoryDietary, CategoryAllergy, CategoryPrice, CategoryDish}
	sentiments = []Sentiment{SentimentLove, SentimentLike, SentimentNeutral, SentimentDislike, SentimentHate}
)

// Categories returns the accepted category values in catalog order.
func Categories() []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		out = append(out, string(c))
	}
	return out
}

// Sentiments returns the accepted sentiment values in catalog order.
func Sentiments() []string {
	out := make([]string, 0, len(sentiments))
	for _, s := range sentiments {
		out = append(out, string(s))
	}
	return out
}

func ParseCategory(raw string) (Category, error) {
	for _, c := range categories {
		if string(c) == raw {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", raw)
}

func ParseSentiment(raw string) (Sentiment, error) {
	for _, s := range sentiments {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown sentiment %q", raw)
}

// Positive reports whether s is love or like.
func (s Sentiment) Positive() bool {
	return s == SentimentLove || s == SentimentLike
}

// Negative reports whether s is dislike or hate.
func (s Sentiment) Negative() bool {
	return s == SentimentDislike || s == SentimentHate
}

// TasteProfile is a user's accumulated food preferences. List fields hold
// unique values in insertion order; scalar fields are overwritten on update.
type TasteProfile struct {
	UserID              string    `json:"user_id"`
	Cuisines            []string  `json:"cuisines"`
	SpiceLevel          string    `json:"spice_level,omitempty"`
	DietaryRestrictions []string  `json:"dietary_restrictions"`
	Allergies           []string  `json:"allergies"`
	PricePreference     string    `json:"price_preference,omitempty"`
	FavoriteDishes      []string  `json:"favorite_dishes"`
	Dislikes            []string  `json:"dislikes"`
	LastUpdated         time.Time `json:"last_updated"`
}

// NewTasteProfile returns an empty profile whose lists encode as [] rather
// than null.
func NewTasteProfile(userID string, now time.Time) TasteProfile {
	return TasteProfile{
		UserID:              userID,
		Cuisines:            []string{},
		DietaryRestrictions: []string{},
		Allergies:           []string{},
		FavoriteDishes:      []string{},
		Dislikes:            []string{},
		LastUpdated:         now,
	}
}

// Clone returns a deep copy so callers can't mutate store-owned slices.
func (p TasteProfile) Clone() TasteProfile {
	p.Cuisines = cloneStrings(p.Cuisines)
	p.DietaryRestrictions = cloneStrings(p.DietaryRestrictions)
	p.Allergies = cloneStrings(p.Allergies)
	p.FavoriteDishes = cloneStrings(p.FavoriteDishes)
	p.Dislikes = cloneStrings(p.Dislikes)
	return p
}

// ContextSummary renders the profile as a single line for the system prompt,
// e.g. "Cuisines: Vietnamese, Thai | Spice: hot | Loves: phở".
func (p TasteProfile) ContextSummary() string {
	parts := make([]string, 0, 5)
	if len(p.Cuisines) > 0 {
		parts = append(parts, "Cuisines: "+strings.Join(p.Cuisines, ", "))
	}
	if p.SpiceLevel != "" {
		parts = append(parts, "Spice: "+p.SpiceLevel)
	}
	if len(p.DietaryRestrictions) > 0 {
		parts = append(parts, "Diet: "+strings.Join(p.DietaryRestrictions, ", "))
	}
	if p.PricePreference != "" {
		parts = append(parts, "Budget: "+p.PricePreference)
	}
	if len(p.FavoriteDishes) > 0 {
		loves := p.FavoriteDishes
		if len(loves) > 3 {
			loves = loves[:3]
		}
		parts = append(parts, "Loves: "+strings.Join(loves, ", "))
	}
	if len(parts) == 0 {
		return "No preferences"
	}
	return strings.Join(parts, " | ")
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
