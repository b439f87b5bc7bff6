package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"taste-agent/internal/domain"
)

type promptContext struct {
	pinnedPrompt   string
	profileSummary string
}

// buildPromptMessages lays out the model input: one system message, the
// recent history, then the current user message.
func buildPromptMessages(ctx promptContext, history []domain.Message, userContent string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleSystem,
		Content: buildSystemPrompt(ctx),
	})

	for _, m := range history {
		if msg, ok := historyToPromptMessage(m); ok {
			messages = append(messages, msg)
		}
	}

	return append(messages, domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: userContent,
	})
}

func buildSystemPrompt(ctx promptContext) string {
	sections := []string{
		"Role:",
		"You are a friendly food guide helping users in Vietnam discover dishes and restaurants they will enjoy.",
		"",
		"Capabilities:",
		"- Learn the user's tastes from the conversation and record them with update_user_taste_profile.",
		"- Look up what is already known with get_user_taste_profile.",
		"- Find places to eat with search_restaurants.",
		"",
		"Behavior Rules:",
		behaviorRules(),
		"",
		"User Taste Profile:",
		normalizePromptInput(ctx.profileSummary),
	}
	if pinned := strings.TrimSpace(ctx.pinnedPrompt); pinned != "" {
		sections = append(sections, "", "Operator Notes:", pinned)
	}
	return strings.Join(sections, "\n")
}

func behaviorRules() string {
	return strings.Join([]string{
		"1) Reply in the language the user writes in.",
		"2) Whenever the user states a like, dislike, allergy, diet, spice tolerance or budget, record it before answering.",
		"3) Never recommend dishes that conflict with recorded allergies or dietary restrictions.",
		"4) Only mention restaurants returned by search_restaurants; do not invent names or addresses.",
		"5) If a tool fails, tell the user briefly and continue with what you know.",
		"6) Keep answers short and concrete.",
	}, "\n")
}

func historyToPromptMessage(m domain.Message) (domain.ChatMessage, bool) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return domain.ChatMessage{}, false
	}
	switch m.Role {
	case domain.RoleUser, domain.RoleAssistant:
		return domain.ChatMessage{Role: m.Role, Content: text}, true
	default:
		return domain.ChatMessage{}, false
	}
}

// userContent appends caller-supplied context, such as the user's location,
// to the message the model sees. The stored history keeps the bare message.
func userContent(message string, extra map[string]any, log *slog.Logger) string {
	if len(extra) == 0 {
		return message
	}
	raw, err := json.Marshal(extra)
	if err != nil {
		log.Warn("dropping unencodable turn context", "err", err)
		return message
	}
	return fmt.Sprintf("%s\n\n[Additional Context: %s]", message, raw)
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
