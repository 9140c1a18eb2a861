package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alejandria/sales-ai-platform/internal/archive"
	"github.com/alejandria/sales-ai-platform/internal/conversation"
	"github.com/alejandria/sales-ai-platform/internal/leads"
	"github.com/alejandria/sales-ai-platform/internal/notify"
	"github.com/alejandria/sales-ai-platform/internal/observability/metrics"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

// Outcome types reported in Result.Type.
const (
	TypeText       = "text"
	TypeAudio      = "audio"
	TypeTextError  = "text-error"
	TypeAudioError = "audio-error"
	TypeFatal      = "fatal"
)

// ErrUnknownContent is returned when an envelope carries a content variant the
// messenger cannot deliver.
var ErrUnknownContent = errors.New("pipeline: unknown reply content")

// Responder generates the reply for one message.
type Responder interface {
	Respond(ctx context.Context, req conversation.MessageRequest) (*conversation.ResponseEnvelope, error)
}

// LeadRouter owns the STOP precondition and the CRM side effects of a turn.
type LeadRouter interface {
	IsSuppressed(ctx context.Context, leadID int64) (bool, error)
	Route(ctx context.Context, leadID int64, tag conversation.LeadTag) (leads.Decision, error)
}

// Messenger delivers replies into the CRM chat.
type Messenger interface {
	SendTextMessage(ctx context.Context, conversationID, text string) error
	SendAudioMessage(ctx context.Context, conversationID, mimeType, audioBase64 string) error
}

// Auditor records CRM side effects.
type Auditor interface {
	LogLeadMoved(ctx context.Context, leadID int64, conversationID, category, leadTag string, pipelineID, statusID int64) error
	LogStopTagged(ctx context.Context, leadID int64, conversationID, category, tag string) error
	LogMessageIgnored(ctx context.Context, leadID int64, conversationID, userMessage string) error
	LogRouteFailed(ctx context.Context, leadID int64, conversationID, leadTag string, routeErr error) error
}

// PromotionNotifier alerts advisors when a lead leaves the bot.
type PromotionNotifier interface {
	NotifyPromotion(ctx context.Context, p notify.Promotion) error
}

// TranscriptArchiver stores the conversation of a promoted lead.
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, record *archive.TranscriptRecord) error
}

// HistoryReader loads a session's turns.
type HistoryReader interface {
	History(ctx context.Context, sessionID string) ([]conversation.Turn, error)
}

// Result is the outcome of one inbound message.
type Result struct {
	Success  bool                 `json:"success" dynamodbav:"success"`
	Ignored  bool                 `json:"ignored,omitempty" dynamodbav:"ignored,omitempty"`
	Type     string               `json:"type,omitempty" dynamodbav:"type,omitempty"`
	Error    string               `json:"error,omitempty" dynamodbav:"error,omitempty"`
	Category leads.Category       `json:"category,omitempty" dynamodbav:"category,omitempty"`
	LeadTag  conversation.LeadTag `json:"leadTag,omitempty" dynamodbav:"leadTag,omitempty"`
	Reply    string               `json:"reply,omitempty" dynamodbav:"reply,omitempty"`

	Envelope *conversation.ResponseEnvelope `json:"-" dynamodbav:"-"`
}

// Service runs the STOP check, reply generation, delivery and lead routing for
// each inbound CRM message.
type Service struct {
	responder Responder
	router    LeadRouter
	messenger Messenger
	records   leads.Repository
	auditor   Auditor
	notifier  PromotionNotifier
	archiver  TranscriptArchiver
	history   HistoryReader
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithRecords stores every delivered turn's lead record.
func WithRecords(repo leads.Repository) Option {
	return func(s *Service) { s.records = repo }
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func WithNotifier(n PromotionNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithTranscriptArchive archives the session history when a lead is promoted.
func WithTranscriptArchive(archiver TranscriptArchiver, history HistoryReader) Option {
	return func(s *Service) {
		s.archiver = archiver
		s.history = history
	}
}

func WithMetrics(m *metrics.ConversationMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires the message pipeline.
func NewService(responder Responder, router LeadRouter, messenger Messenger, logger *logging.Logger, opts ...Option) *Service {
	if responder == nil {
		panic("pipeline: responder cannot be nil")
	}
	if router == nil {
		panic("pipeline: lead router cannot be nil")
	}
	if messenger == nil {
		panic("pipeline: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		responder: responder,
		router:    router,
		messenger: messenger,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsSuppressed reports whether the lead carries the STOP tag.
func (s *Service) IsSuppressed(ctx context.Context, leadID int64) (bool, error) {
	return s.router.IsSuppressed(ctx, leadID)
}

// HandleIncomingMessage processes one CRM chat message end to end.
// Failures are reported in the Result; the error is only non-nil when ctx
// ended before the turn finished.
func (s *Service) HandleIncomingMessage(ctx context.Context, req conversation.MessageRequest) (*Result, error) {
	start := s.now()
	defer func() { s.metrics.ObserveMessageLatency(s.now().Sub(start)) }()

	if err := req.Validate(); err != nil {
		s.metrics.ObserveTurn("", "invalid")
		return &Result{Error: ValidationReason(err)}, nil
	}
	if strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = req.ConversationID
	}
	logger := s.logger.WithLead(req.LeadID, req.ConversationID)

	// Runs ahead of the farewell check: a STOP lead gets no reply at all.
	suppressed, err := s.router.IsSuppressed(ctx, req.LeadID)
	s.metrics.ObserveCRMAction("stop_check", err)
	if err != nil {
		logger.Error("stop tag check failed", "error", err)
		s.metrics.ObserveTurn("", TypeFatal)
		return &Result{Type: TypeFatal, Error: err.Error()}, ctx.Err()
	}
	if suppressed {
		logger.Info("lead suppressed, skipping reply")
		s.metrics.ObserveSuppressed()
		s.metrics.ObserveCategory(string(leads.CategoryIgnored))
		if s.auditor != nil {
			if err := s.auditor.LogMessageIgnored(ctx, req.LeadID, req.ConversationID, req.Prompt); err != nil {
				logger.Warn("failed to audit ignored message", "error", err)
			}
		}
		return &Result{Success: true, Ignored: true, Category: leads.CategoryIgnored}, nil
	}

	env, err := s.responder.Respond(ctx, req)
	if err != nil {
		typ := TypeFatal
		if conversation.IsSynthesisError(err) {
			typ = TypeAudioError
		}
		logger.Error("reply generation failed", "error", err, "type", typ)
		s.metrics.ObserveTurn(string(conversation.TagFatal), typ)
		return &Result{Type: typ, Error: err.Error(), LeadTag: conversation.TagFatal, Category: leads.CategoryError}, ctx.Err()
	}

	res := &Result{Envelope: env, LeadTag: env.Lead.Type, Reply: env.ReplyText()}
	res.Type, err = s.deliver(ctx, logger, req.ConversationID, env.Content)
	s.metrics.ObserveTurn(string(env.Lead.Type), res.Type)
	if err != nil {
		logger.Error("reply delivery failed", "error", err, "type", res.Type)
		res.Error = err.Error()
		return res, ctx.Err()
	}
	res.Success = true

	decision := s.route(ctx, logger, req, env.Lead.Type)
	res.Category = decision.Category
	s.metrics.ObserveCategory(string(decision.Category))

	if s.records != nil {
		if err := s.records.Save(ctx, leads.NewRecord(req.LeadID, req.ConversationID, env.Lead, decision.Category)); err != nil {
			logger.Warn("failed to save lead record", "error", err)
		}
	}
	if decision.StopTagged {
		s.promote(ctx, logger, req, env, decision)
	}
	return res, nil
}

// deliver sends the reply content. Audio with a caption sends the text first;
// a failed audio send after that is logged and the turn counts as text.
func (s *Service) deliver(ctx context.Context, logger *logging.Logger, conversationID string, content conversation.Content) (string, error) {
	switch c := content.(type) {
	case conversation.TextContent:
		if err := s.messenger.SendTextMessage(ctx, conversationID, c.Text); err != nil {
			return TypeTextError, fmt.Errorf("pipeline: send text: %w", err)
		}
		return TypeText, nil
	case conversation.AudioContent:
		if c.Caption != "" {
			if err := s.messenger.SendTextMessage(ctx, conversationID, c.Caption); err != nil {
				return TypeTextError, fmt.Errorf("pipeline: send text: %w", err)
			}
			if err := s.messenger.SendAudioMessage(ctx, conversationID, c.MimeType, c.Base64); err != nil {
				logger.Warn("audio send failed after text delivery", "error", err)
				return TypeText, nil
			}
			return TypeAudio, nil
		}
		if err := s.messenger.SendAudioMessage(ctx, conversationID, c.MimeType, c.Base64); err != nil {
			return TypeAudioError, fmt.Errorf("pipeline: send audio: %w", err)
		}
		return TypeAudio, nil
	default:
		return TypeFatal, ErrUnknownContent
	}
}

// route applies the pipeline move and STOP tag. Errors are logged and audited;
// the reply has already reached the client.
func (s *Service) route(ctx context.Context, logger *logging.Logger, req conversation.MessageRequest, tag conversation.LeadTag) leads.Decision {
	decision, err := s.router.Route(ctx, req.LeadID, tag)
	if err != nil {
		s.metrics.ObserveCRMAction("route", err)
		logger.Error("lead routing failed", "error", err, "lead_tag", string(tag))
		if s.auditor != nil {
			if auditErr := s.auditor.LogRouteFailed(ctx, req.LeadID, req.ConversationID, string(tag), err); auditErr != nil {
				logger.Warn("failed to audit route failure", "error", auditErr)
			}
		}
		return decision
	}

	if decision.Moved {
		s.metrics.ObserveCRMAction("move", nil)
		if s.auditor != nil {
			if err := s.auditor.LogLeadMoved(ctx, req.LeadID, req.ConversationID, string(decision.Category), string(tag), decision.PipelineID, decision.StatusID); err != nil {
				logger.Warn("failed to audit lead move", "error", err)
			}
		}
	}
	if decision.StopTagged {
		s.metrics.ObserveCRMAction("stop_tag", nil)
		if s.auditor != nil {
			if err := s.auditor.LogStopTagged(ctx, req.LeadID, req.ConversationID, string(decision.Category), decision.StopTag); err != nil {
				logger.Warn("failed to audit stop tag", "error", err)
			}
		}
	}
	return decision
}

// promote hands a newly stopped lead to the advisors.
func (s *Service) promote(ctx context.Context, logger *logging.Logger, req conversation.MessageRequest, env *conversation.ResponseEnvelope, decision leads.Decision) {
	if s.notifier != nil {
		err := s.notifier.NotifyPromotion(ctx, notify.Promotion{
			LeadID:         req.LeadID,
			ConversationID: req.ConversationID,
			Category:       decision.Category,
			Tag:            string(env.Lead.Type),
			LastMessage:    req.Prompt,
			LastReply:      env.ReplyText(),
			At:             s.now().UTC(),
		})
		if err != nil {
			logger.Warn("advisor notification failed", "error", err)
		}
	}

	if s.archiver == nil || s.history == nil {
		return
	}
	turns, err := s.history.History(ctx, req.SessionID)
	if err != nil {
		logger.Warn("failed to load history for archive", "error", err)
		return
	}
	err = s.archiver.ArchiveTranscript(ctx, &archive.TranscriptRecord{
		SessionID:      req.SessionID,
		LeadID:         req.LeadID,
		ConversationID: req.ConversationID,
		Category:       string(decision.Category),
		LeadTag:        string(env.Lead.Type),
		Turns:          archive.TranscriptFromTurns(turns),
	})
	if err != nil {
		logger.Warn("failed to archive transcript", "error", err)
	}
}

// ValidationReason renders a MessageRequest validation error for API responses.
func ValidationReason(err error) string {
	switch {
	case errors.Is(err, conversation.ErrEmptyPrompt):
		return "empty prompt"
	case errors.Is(err, conversation.ErrMissingConversationID):
		return "missing conversationId"
	case errors.Is(err, conversation.ErrMissingLeadID):
		return "missing leadId"
	default:
		return err.Error()
	}
}
