package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/alejandria/sales-ai-platform/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	acceptsMeetingRE = regexp.MustCompile(`\b(?:agendar|agendemos|agenda|reunion|meet|zoom|llamada|llamame|videollamada|podemos hablar)\b`)
	offersMeetingRE  = regexp.MustCompile(`\b(?:reunion|meet|agendar|agendemos|llamada|videollamada|zoom)\b`)
)

// RetrievalScope limits which sessions feed nearest-neighbor context.
type RetrievalScope string

const (
	RetrievalGlobal  RetrievalScope = "global"
	RetrievalSession RetrievalScope = "session"
)

// CompletionObserver receives the latency of each completion call.
type CompletionObserver interface {
	ObserveCompletion(kind string, d time.Duration, err error)
}

// Responder turns one client message into a reply and a lead record.
type Responder struct {
	llm       LLMClient
	embedder  Embedder
	history   HistoryStore
	cache     ProfileCache
	extractor *FactExtractor
	intents   *IntentClassifier
	gate      QualificationGate
	channel   *ChannelSelector
	prompts   Prompts
	observer  CompletionObserver
	tracer    trace.Tracer
	logger    *logging.Logger

	model           string
	maxTokens       int32
	temperature     float32
	topK            int
	scope           RetrievalScope
	typingDelay     time.Duration
	typingThreshold int
	now             func() time.Time
}

// ResponderOption customizes a Responder.
type ResponderOption func(*Responder)

func WithProfileCache(cache ProfileCache) ResponderOption {
	return func(r *Responder) {
		if cache != nil {
			r.cache = cache
		}
	}
}

func WithChannelSelector(selector *ChannelSelector) ResponderOption {
	return func(r *Responder) { r.channel = selector }
}

func WithPrompts(p Prompts) ResponderOption {
	return func(r *Responder) { r.prompts = p }
}

// WithGeneration sets the model id and sampling limits for completions.
func WithGeneration(model string, maxTokens int, temperature float64) ResponderOption {
	return func(r *Responder) {
		r.model = model
		if maxTokens > 0 {
			r.maxTokens = int32(maxTokens)
		}
		r.temperature = float32(temperature)
	}
}

// WithRetrieval sets how many similar turns are added and from which sessions.
func WithRetrieval(scope RetrievalScope, topK int) ResponderOption {
	return func(r *Responder) {
		if scope == RetrievalSession {
			r.scope = RetrievalSession
		}
		if topK >= 0 {
			r.topK = topK
		}
	}
}

// WithTypingDelay pauses before answering with replies longer than threshold runes.
func WithTypingDelay(delay time.Duration, threshold int) ResponderOption {
	return func(r *Responder) {
		r.typingDelay = delay
		r.typingThreshold = threshold
	}
}

func WithFactExtractor(e *FactExtractor) ResponderOption {
	return func(r *Responder) {
		if e != nil {
			r.extractor = e
		}
	}
}

func WithIntentClassifier(c *IntentClassifier) ResponderOption {
	return func(r *Responder) {
		if c != nil {
			r.intents = c
		}
	}
}

func WithCompletionObserver(o CompletionObserver) ResponderOption {
	return func(r *Responder) { r.observer = o }
}

func withClock(now func() time.Time) ResponderOption {
	return func(r *Responder) { r.now = now }
}

// NewResponder wires the conversation engine.
func NewResponder(llm LLMClient, embedder Embedder, history HistoryStore, logger *logging.Logger, opts ...ResponderOption) *Responder {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if embedder == nil {
		panic("conversation: embedder cannot be nil")
	}
	if history == nil {
		panic("conversation: history store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Responder{
		llm:             llm,
		embedder:        embedder,
		history:         history,
		cache:           NoopProfileCache{},
		extractor:       defaultExtractor,
		intents:         NewIntentClassifier(),
		prompts:         DefaultPrompts(),
		tracer:          otel.Tracer("alejandria.internal.conversation.responder"),
		logger:          logger,
		maxTokens:       400,
		temperature:     0.4,
		topK:            3,
		scope:           RetrievalGlobal,
		typingDelay:     5 * time.Second,
		typingThreshold: 180,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respond runs one turn: off-ramps, qualification gates, then full generation.
// Errors mean the turn failed; callers report them as a fatal outcome.
func (r *Responder) Respond(ctx context.Context, req MessageRequest) (*ResponseEnvelope, error) {
	ctx, span := r.tracer.Start(ctx, "conversation.respond", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
	))
	defer span.End()

	if strings.TrimSpace(req.SessionID) == "" {
		return nil, ErrMissingSessionID
	}
	if strings.TrimSpace(req.Prompt) == "" && req.Document == nil {
		return nil, ErrEmptyPrompt
	}
	logger := r.logger.WithSession(req.SessionID)

	history, err := r.history.ListTurns(ctx, req.SessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}

	userText := DocumentTurnText(req.Prompt, req.Document)
	// Stamped on arrival so the stored exchange reads back in order.
	userTurn := StoredTurn{Turn: r.turn(ChatRoleUser, userText)}
	profile := r.extractor.Apply(r.profileFor(ctx, req.SessionID, history), lastAssistantText(history), userText)
	hasDocument := req.Document != nil

	record := func(tag LeadTag, stage, reply string) LeadRecord {
		return LeadRecord{
			Type:        tag,
			Stage:       stage,
			Timestamp:   r.now().UTC(),
			SessionID:   req.SessionID,
			InputPrompt: req.Prompt,
			AIReplyText: reply,
		}
	}

	intent := r.intents.Classify(req.Prompt)
	if intent == IntentOneOffJob && hasDocument {
		// The file itself is the answer to the document request.
		intent = IntentNone
	}
	span.SetAttributes(attribute.String("conversation.intent", intent.String()))
	switch intent {
	case IntentFarewell:
		return &ResponseEnvelope{Content: TextContent{Text: farewellReply}, Lead: record(TagFarewell, StageClosed, farewellReply)}, nil
	case IntentLearn, IntentOneOffJob:
		instruction, tag, stage := r.prompts.Educational, TagEducational, StageInterestedInLearning
		if intent == IntentOneOffJob {
			instruction, tag, stage = r.prompts.OneOff, TagOneOffJob, StageAwaitingFileForQuote
		}
		reply, err := r.complete(ctx, "off-ramp", LLMRequest{
			System:   []string{instruction},
			Messages: []ChatMessage{{Role: ChatRoleUser, Content: req.Prompt}},
		})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		r.persist(ctx, logger, req.SessionID, history, profile, userTurn, StoredTurn{Turn: r.turn(ChatRoleAssistant, reply)})
		return &ResponseEnvelope{Content: TextContent{Text: reply}, Lead: record(tag, stage, reply)}, nil
	}

	if decision := r.gate.Evaluate(profile, req.Prompt, hasDocument); decision != nil {
		span.SetAttributes(attribute.String("conversation.gate", string(decision.Tag)))
		r.persist(ctx, logger, req.SessionID, history, profile, userTurn, StoredTurn{Turn: r.turn(ChatRoleAssistant, decision.Reply)})
		return &ResponseEnvelope{Content: TextContent{Text: decision.Reply}, Lead: record(decision.Tag, decision.Stage, decision.Reply)}, nil
	}

	reply, queryVec, err := r.generate(ctx, req, history, profile)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := r.waitTyping(ctx, reply); err != nil {
		return nil, err
	}

	replyTurn := StoredTurn{Turn: r.turn(ChatRoleAssistant, reply)}
	if vec, err := r.embedder.Embed(ctx, reply); err != nil {
		logger.Warn("failed to embed reply, storing without vector", "error", err)
	} else {
		replyTurn.Embedding = vec
	}
	userTurn.Embedding = queryVec
	r.persist(ctx, logger, req.SessionID, history, profile, userTurn, replyTurn)

	tag, stage := TagCold, StageNew
	meeting := acceptsMeetingRE.MatchString(foldText(req.Prompt)) || offersMeetingRE.MatchString(foldText(reply))
	if (hasDocument && profile.Qualified()) || meeting ||
		(profile.University != "" && profile.Major != "" && profile.ProgressStage != ProgressUnknown) {
		tag, stage = TagWarm, StageInterested
	}

	content, err := r.channel.Select(ctx, reply)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &ResponseEnvelope{Content: content, Lead: record(tag, stage, reply)}, nil
}

// generate assembles the full context and returns the cleaned reply and the
// embedding of the client's message.
func (r *Responder) generate(ctx context.Context, req MessageRequest, history []Turn, profile ClientProfile) (string, []float32, error) {
	query := strings.TrimSpace(req.Prompt)
	if query == "" {
		query = DocumentTurnText(req.Prompt, req.Document)
	}
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return "", nil, fmt.Errorf("conversation: embed message: %w", err)
	}

	sessionFilter := ""
	if r.scope == RetrievalSession {
		sessionFilter = req.SessionID
	}
	snippets, err := r.history.NearestByEmbedding(ctx, queryVec, r.topK, sessionFilter)
	if err != nil {
		return "", nil, fmt.Errorf("conversation: nearest turns: %w", err)
	}

	messages := make([]ChatMessage, 0, len(history)+len(snippets)+2)
	if !hasIntro(history) {
		messages = append(messages, ChatMessage{Role: ChatRoleAssistant, Content: introTurn})
	}
	for _, t := range history {
		messages = append(messages, ChatMessage{Role: t.Role, Content: t.Text})
	}
	for _, s := range snippets {
		messages = append(messages, ChatMessage{Role: ChatRoleAssistant, Content: s})
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: DocumentTurnText(req.Prompt, req.Document)})

	system := []string{r.prompts.System}
	if summary := profile.Summary(); summary != "" {
		system = append(system, summary)
	}
	reply, err := r.complete(ctx, "sales", LLMRequest{System: system, Messages: messages})
	if err != nil {
		return "", nil, err
	}
	return reply, queryVec, nil
}

func (r *Responder) complete(ctx context.Context, kind string, req LLMRequest) (string, error) {
	req.Model = r.model
	req.MaxTokens = r.maxTokens
	req.Temperature = r.temperature

	start := time.Now()
	resp, err := r.llm.Complete(ctx, req)
	if r.observer != nil {
		r.observer.ObserveCompletion(kind, time.Since(start), err)
	}
	if err != nil {
		return "", fmt.Errorf("conversation: completion: %w", err)
	}
	reply := CleanReply(resp.Text)
	if reply == "" {
		return "", ErrEmptyCompletion
	}
	return reply, nil
}

// waitTyping simulates typing for long replies without holding any lock.
func (r *Responder) waitTyping(ctx context.Context, reply string) error {
	if r.typingDelay <= 0 || len([]rune(reply)) <= r.typingThreshold {
		return nil
	}
	timer := time.NewTimer(r.typingDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// profileFor reuses a cached profile when it covers exactly the loaded history.
func (r *Responder) profileFor(ctx context.Context, sessionID string, history []Turn) ClientProfile {
	if cached, ok := r.cache.Get(ctx, sessionID); ok && cached.TurnCount == len(history) {
		return cached.Profile
	}
	return r.extractor.Extract(history)
}

// persist appends the exchange; failures are logged and the turn still succeeds.
func (r *Responder) persist(ctx context.Context, logger *logging.Logger, sessionID string, history []Turn, profile ClientProfile, turns ...StoredTurn) {
	if err := r.history.Append(ctx, sessionID, turns...); err != nil {
		logger.Error("failed to persist chat turns", "error", err)
		return
	}
	r.cache.Put(ctx, sessionID, CachedProfile{Profile: profile, TurnCount: len(history) + len(turns)})
}

func (r *Responder) turn(role, text string) Turn {
	return Turn{Role: role, Text: text, Timestamp: r.now().UTC()}
}

// History returns the stored turns of a session.
func (r *Responder) History(ctx context.Context, sessionID string) ([]Turn, error) {
	return r.history.ListTurns(ctx, sessionID)
}

func hasIntro(history []Turn) bool {
	for _, t := range history {
		if t.Role == ChatRoleAssistant && strings.Contains(foldText(t.Text), introMarker) {
			return true
		}
	}
	return false
}

func lastAssistantText(history []Turn) string {
	if n := len(history); n > 0 && history[n-1].Role == ChatRoleAssistant {
		return history[n-1].Text
	}
	return ""
}

// IsSynthesisError reports whether err came from voice rendition.
func IsSynthesisError(err error) bool {
	return errors.Is(err, ErrSynthesis)
}
