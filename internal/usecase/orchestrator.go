package usecase

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"taste-agent/internal/domain"
	"taste-agent/internal/keylock"
)

type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeDegraded    Outcome = "degraded"
)

const (
	rateLimitedMessage = "This conversation has reached its message limit. Please start a new conversation."
	degradedMessage    = "Sorry, I can't reach the recommendation service right now. Please try again in a moment."
)

// ModelPort is a chat model that can ask for tool calls.
type ModelPort interface {
	Send(ctx context.Context, messages []domain.ChatMessage, tools []domain.ToolSchema) (domain.ModelReply, error)
}

type ToolExecutor interface {
	Schemas() []domain.ToolSchema
	IsUserScoped(name string) bool
	Execute(ctx context.Context, name string, args map[string]any) domain.ToolOutcome
}

type ConversationStore interface {
	GetOrCreate(key domain.ConversationKey) domain.ConversationHistory
	Get(key domain.ConversationKey) (domain.ConversationHistory, bool)
	Append(key domain.ConversationKey, msgs ...domain.Message)
	Trim(key domain.ConversationKey, max int)
	Clear(key domain.ConversationKey)
}

type ActivityTracker interface {
	CheckAndMaybeReset(conversationID string, now time.Time) bool
	Increment(conversationID string) int
	Touch(conversationID string, now time.Time)
}

type ProfileReader interface {
	Get(userID string) domain.TasteProfile
}

// TurnRecorder receives every completed turn after the conversation lock is
// released. Failures are logged and never fail the turn.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, rec domain.TurnRecord) error
}

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Limits bounds the work and state of a single conversation.
type Limits struct {
	MaxMessageLength        int
	HistoryWindow           int
	HistoryCap              int
	MaxCallsPerConversation int
	MaxModelAttempts        int
	MaxToolIterations       int
	ModelRetryDelay         time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		MaxMessageLength:        1000,
		HistoryWindow:           20,
		HistoryCap:              50,
		MaxCallsPerConversation: 10,
		MaxModelAttempts:        2,
		MaxToolIterations:       5,
		ModelRetryDelay:         250 * time.Millisecond,
	}
}

// Orchestrator runs conversational turns. Turns on the same conversation
// are serialized; turns on different conversations run in parallel.
type Orchestrator struct {
	model         ModelPort
	tools         ToolExecutor
	conversations ConversationStore
	activity      ActivityTracker
	profiles      ProfileReader
	recorder      TurnRecorder
	locks         *keylock.Mutex
	limits        Limits
	logger        *slog.Logger
	now           func() time.Time

	params       ParamGetter
	paramPrefix  string
	promptMu     sync.RWMutex
	promptLoaded bool
	pinnedPrompt string
}

type Option func(*Orchestrator)

func WithLimits(l Limits) Option {
	return func(o *Orchestrator) { o.limits = l }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithRecorder(r TurnRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithPinnedPrompt loads operator instructions from <prefix>/pinned_prompt
// on first use and appends them to the system prompt.
func WithPinnedPrompt(params ParamGetter, prefix string) Option {
	return func(o *Orchestrator) {
		o.params = params
		o.paramPrefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	}
}

type TurnInput struct {
	UserID         string
	Message        string
	ConversationID string
	Context        map[string]any
}

type TurnResult struct {
	FinalMessage   string
	ToolCalls      []domain.ToolCall
	ToolResults    []domain.ToolResult
	ConversationID string
	MessageID      string
	Outcome        Outcome
}

func NewOrchestrator(model ModelPort, tools ToolExecutor, conversations ConversationStore, activity ActivityTracker, profiles ProfileReader, opts ...Option) (*Orchestrator, error) {
	if model == nil {
		return nil, errors.New("usecase: model port must not be nil")
	}
	if tools == nil {
		return nil, errors.New("usecase: tool executor must not be nil")
	}
	if conversations == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if activity == nil {
		return nil, errors.New("usecase: activity tracker must not be nil")
	}
	if profiles == nil {
		return nil, errors.New("usecase: profile store must not be nil")
	}

	o := &Orchestrator{
		model:         model,
		tools:         tools,
		conversations: conversations,
		activity:      activity,
		profiles:      profiles,
		locks:         keylock.New(),
		limits:        DefaultLimits(),
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	l := o.limits
	if l.MaxMessageLength <= 0 || l.HistoryWindow <= 0 || l.HistoryCap <= 0 ||
		l.MaxCallsPerConversation <= 0 || l.MaxModelAttempts <= 0 || l.MaxToolIterations <= 0 {
		return nil, errors.New("usecase: limits must be positive")
	}
	if l.ModelRetryDelay < 0 {
		return nil, errors.New("usecase: model retry delay must not be negative")
	}
	if o.params != nil && o.paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	return o, nil
}

// ProcessTurn handles one user message. Model and tool failures do not
// produce an error: they are reported through TurnResult.Outcome. An error
// is returned only for invalid input or an internal failure, and in both
// cases no conversation state has been touched.
func (o *Orchestrator) ProcessTurn(ctx context.Context, in TurnInput) (TurnResult, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return TurnResult{}, newError(ErrorInvalidInput, "empty_user_id", nil)
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return TurnResult{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > o.limits.MaxMessageLength {
		return TurnResult{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	pinned, err := o.ensurePinnedPrompt(ctx)
	if err != nil {
		return TurnResult{}, newError(ErrorInternal, "ssm_load_error", err)
	}

	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		convID = newID("conv_")
	}
	key := domain.ConversationKey{UserID: userID, ConversationID: convID}

	result, record := o.runTurn(ctx, key, message, in.Context, pinned)
	if record != nil && o.recorder != nil {
		if err := o.recorder.RecordTurn(ctx, *record); err != nil {
			o.logger.Warn("turn journal write failed", "conversation_id", convID, "err", err)
		}
	}
	return result, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, key domain.ConversationKey, message string, extra map[string]any, pinned string) (TurnResult, *domain.TurnRecord) {
	unlock := o.locks.Lock(key.ConversationID)
	defer unlock()

	log := o.logger.With("conversation_id", key.ConversationID, "user_id", key.UserID)

	if o.activity.CheckAndMaybeReset(key.ConversationID, o.now()) {
		o.conversations.Clear(key)
		log.Info("conversation idle past ttl, history reset")
	}

	count := o.activity.Increment(key.ConversationID)
	if count > o.limits.MaxCallsPerConversation {
		log.Warn("conversation call limit reached", "calls", count, "limit", o.limits.MaxCallsPerConversation)
		return TurnResult{
			FinalMessage:   rateLimitedMessage,
			ToolCalls:      []domain.ToolCall{},
			ToolResults:    []domain.ToolResult{},
			ConversationID: key.ConversationID,
			MessageID:      newID("msg_"),
			Outcome:        OutcomeRateLimited,
		}, nil
	}

	history := o.conversations.GetOrCreate(key)
	profile := o.profiles.Get(key.UserID)
	transcript := buildPromptMessages(promptContext{
		pinnedPrompt:   pinned,
		profileSummary: profile.ContextSummary(),
	}, recent(history.Messages, o.limits.HistoryWindow), userContent(message, extra, log))

	loop := o.runToolLoop(ctx, log, key.UserID, transcript)

	ts := o.now()
	userMsg := domain.Message{
		ID:        newID("msg_"),
		Role:      domain.RoleUser,
		Text:      message,
		Timestamp: ts,
	}
	assistantMsg := domain.Message{
		ID:          newID("msg_"),
		Role:        domain.RoleAssistant,
		Text:        loop.final,
		Timestamp:   ts,
		ToolCalls:   loop.calls,
		ToolResults: loop.results,
	}
	o.conversations.Append(key, userMsg, assistantMsg)
	o.conversations.Trim(key, o.limits.HistoryCap)
	o.activity.Touch(key.ConversationID, ts)

	result := TurnResult{
		FinalMessage:   loop.final,
		ToolCalls:      loop.calls,
		ToolResults:    loop.results,
		ConversationID: key.ConversationID,
		MessageID:      assistantMsg.ID,
		Outcome:        loop.outcome,
	}
	return result, &domain.TurnRecord{
		UserID:           key.UserID,
		ConversationID:   key.ConversationID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		CallCount:        count,
		Outcome:          string(loop.outcome),
	}
}

type loopResult struct {
	final   string
	calls   []domain.ToolCall
	results []domain.ToolResult
	outcome Outcome
}

func (o *Orchestrator) runToolLoop(ctx context.Context, log *slog.Logger, userID string, transcript []domain.ChatMessage) loopResult {
	out := loopResult{
		calls:   []domain.ToolCall{},
		results: []domain.ToolResult{},
		outcome: OutcomeOK,
	}
	schemas := o.tools.Schemas()

	reply, err := o.send(ctx, log, transcript, schemas)
	if err != nil {
		out.final, out.outcome = degradedMessage, OutcomeDegraded
		return out
	}

	for iteration := 0; iteration < o.limits.MaxToolIterations && len(reply.ToolCalls) > 0; iteration++ {
		requested := make([]domain.ToolCall, 0, len(reply.ToolCalls))
		batch := make([]domain.ToolResult, 0, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			if call.CallID == "" {
				call.CallID = newID("call_")
			}
			requested = append(requested, call)
			batch = append(batch, o.executeCall(ctx, log, userID, call))
		}
		out.calls = append(out.calls, requested...)
		out.results = append(out.results, batch...)

		transcript = append(transcript,
			domain.ChatMessage{Role: domain.RoleAssistant, Content: reply.Text, ToolCalls: requested},
			domain.ChatMessage{Role: domain.RoleTool, ToolResults: batch},
		)

		reply, err = o.send(ctx, log, transcript, schemas)
		if err != nil {
			out.final, out.outcome = degradedMessage, OutcomeDegraded
			return out
		}
	}
	if len(reply.ToolCalls) > 0 {
		log.Warn("tool iteration limit reached", "limit", o.limits.MaxToolIterations, "pending", len(reply.ToolCalls))
	}
	out.final = reply.Text
	return out
}

// send calls the model, retrying with identical input up to MaxModelAttempts.
func (o *Orchestrator) send(ctx context.Context, log *slog.Logger, transcript []domain.ChatMessage, schemas []domain.ToolSchema) (domain.ModelReply, error) {
	var lastErr error
	for attempt := 1; attempt <= o.limits.MaxModelAttempts; attempt++ {
		reply, err := o.model.Send(ctx, transcript, schemas)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		attrs := []any{"attempt", attempt, "err", err}
		if status, ok := upstreamStatusCode(err); ok {
			attrs = append(attrs, "status", status)
		}
		log.Warn("model call failed", attrs...)

		if attempt == o.limits.MaxModelAttempts || o.limits.ModelRetryDelay == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return domain.ModelReply{}, newError(ErrorUpstream, "model_unavailable", ctx.Err())
		case <-time.After(o.limits.ModelRetryDelay):
		}
	}
	return domain.ModelReply{}, newError(ErrorUpstream, "model_unavailable", lastErr)
}

func (o *Orchestrator) executeCall(ctx context.Context, log *slog.Logger, userID string, call domain.ToolCall) domain.ToolResult {
	args := make(map[string]any, len(call.Arguments)+1)
	maps.Copy(args, call.Arguments)
	if _, ok := args["user_id"]; !ok && o.tools.IsUserScoped(call.Name) {
		args["user_id"] = userID
	}

	out := o.tools.Execute(ctx, call.Name, args)
	res := domain.ToolResult{
		CallID:  call.CallID,
		Name:    call.Name,
		Payload: toolPayload(out),
		Success: out.Success,
		Error:   out.Error,
	}
	if !out.Success {
		log.Warn("tool call failed", "tool", call.Name, "call_id", call.CallID,
			"err", newError(ErrorTool, call.Name, errors.New(out.Error)))
	}
	return res
}

// GetHistory returns the stored history for one conversation of one user.
func (o *Orchestrator) GetHistory(userID, conversationID string) (domain.ConversationHistory, error) {
	key, err := conversationKey(userID, conversationID)
	if err != nil {
		return domain.ConversationHistory{}, err
	}
	unlock := o.locks.Lock(key.ConversationID)
	defer unlock()

	h, ok := o.conversations.Get(key)
	if !ok {
		return domain.ConversationHistory{}, newError(ErrorNotFound, "conversation_not_found", nil)
	}
	return h, nil
}

// ClearHistory empties a conversation. The call counter is left alone, so
// clearing does not restore the conversation's message budget.
func (o *Orchestrator) ClearHistory(userID, conversationID string) error {
	key, err := conversationKey(userID, conversationID)
	if err != nil {
		return err
	}
	unlock := o.locks.Lock(key.ConversationID)
	defer unlock()

	o.conversations.Clear(key)
	o.logger.Info("conversation history cleared", "conversation_id", key.ConversationID, "user_id", key.UserID)
	return nil
}

func (o *Orchestrator) ensurePinnedPrompt(ctx context.Context) (string, error) {
	if o.params == nil {
		return "", nil
	}
	o.promptMu.RLock()
	if o.promptLoaded {
		defer o.promptMu.RUnlock()
		return o.pinnedPrompt, nil
	}
	o.promptMu.RUnlock()

	o.promptMu.Lock()
	defer o.promptMu.Unlock()
	if o.promptLoaded {
		return o.pinnedPrompt, nil
	}
	pinned, err := o.params.GetParameter(ctx, o.paramPrefix+"/pinned_prompt")
	if err != nil {
		return "", err
	}
	o.pinnedPrompt = strings.TrimSpace(pinned)
	o.promptLoaded = true
	return o.pinnedPrompt, nil
}

func conversationKey(userID, conversationID string) (domain.ConversationKey, error) {
	key := domain.ConversationKey{
		UserID:         strings.TrimSpace(userID),
		ConversationID: strings.TrimSpace(conversationID),
	}
	if key.UserID == "" {
		return key, newError(ErrorInvalidInput, "empty_user_id", nil)
	}
	if key.ConversationID == "" {
		return key, newError(ErrorInvalidInput, "empty_conversation_id", nil)
	}
	return key, nil
}

func toolPayload(out domain.ToolOutcome) any {
	if out.Message == "" {
		return out.Payload
	}
	if out.Payload == nil {
		return map[string]any{"message": out.Message}
	}
	return map[string]any{"message": out.Message, "data": out.Payload}
}

func recent(msgs []domain.Message, n int) []domain.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newID = func(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
