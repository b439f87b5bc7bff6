package tools

import (
	"context"
	"errors"
	"strings"

	"taste-agent/internal/domain"
)

type updateProfileArgs struct {
	UserID    string `json:"user_id"`
	Category  string `json:"category"`
	Value     string `json:"value"`
	Sentiment string `json:"sentiment"`
}

type getProfileArgs struct {
	UserID string `json:"user_id"`
}

func updateProfileHandler(profiles ProfileStore) handlerFunc {
	return func(_ context.Context, raw map[string]any) (domain.ToolOutcome, error) {
		var args updateProfileArgs
		if err := decodeArgs(raw, &args); err != nil {
			return domain.ToolOutcome{}, err
		}
		if strings.TrimSpace(args.UserID) == "" {
			return domain.ToolOutcome{}, errors.New("user_id is required")
		}
		category, err := domain.ParseCategory(strings.TrimSpace(args.Category))
		if err != nil {
			return domain.ToolOutcome{}, err
		}
		sentiment, err := domain.ParseSentiment(strings.TrimSpace(args.Sentiment))
		if err != nil {
			return domain.ToolOutcome{}, err
		}

		summary, err := profiles.Update(args.UserID, category, args.Value, sentiment)
		if err != nil {
			return domain.ToolOutcome{}, err
		}
		return domain.ToolOutcome{
			Success: true,
			Message: summary,
			Payload: profiles.Get(args.UserID),
		}, nil
	}
}

func getProfileHandler(profiles ProfileStore) handlerFunc {
	return func(_ context.Context, raw map[string]any) (domain.ToolOutcome, error) {
		var args getProfileArgs
		if err := decodeArgs(raw, &args); err != nil {
			return domain.ToolOutcome{}, err
		}
		if strings.TrimSpace(args.UserID) == "" {
			return domain.ToolOutcome{}, errors.New("user_id is required")
		}
		return domain.ToolOutcome{Success: true, Payload: profiles.Get(args.UserID)}, nil
	}
}
