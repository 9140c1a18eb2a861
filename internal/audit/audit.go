// Package audit records every write the bot makes against the CRM.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EventType represents the type of CRM audit event.
type EventType string

const (
	// EventLeadMoved is logged when a lead changes pipeline stage.
	EventLeadMoved EventType = "crm.lead_moved"
	// EventStopTagged is logged when the STOP tag is added to a lead.
	EventStopTagged EventType = "crm.stop_tagged"
	// EventMessageIgnored is logged when a message from a STOP-tagged lead is skipped.
	EventMessageIgnored EventType = "crm.message_ignored"
	// EventRouteFailed is logged when a CRM write fails after the reply was delivered.
	EventRouteFailed EventType = "crm.route_failed"
)

// Event represents an immutable CRM audit record.
type Event struct {
	ID             string          `json:"id"`
	EventType      EventType       `json:"event_type"`
	LeadID         int64           `json:"lead_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Category       string          `json:"category,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	UserMessage    string          `json:"user_message,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Details contains event-specific fields.
type Details struct {
	PipelineID int64  `json:"pipeline_id,omitempty"`
	StatusID   int64  `json:"status_id,omitempty"`
	LeadTag    string `json:"lead_tag,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Service writes and reads crm_audit_events.
type Service struct {
	db *sql.DB
}

// NewService creates a new audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// LogEvent records an audit event.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO crm_audit_events (
			id, event_type, lead_id, conversation_id, category,
			tags, user_message, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.EventType),
		event.LeadID,
		nullString(event.ConversationID),
		nullString(event.Category),
		pq.Array(event.Tags),
		nullString(event.UserMessage),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// LogLeadMoved records a pipeline stage change.
func (s *Service) LogLeadMoved(ctx context.Context, leadID int64, conversationID, category, leadTag string, pipelineID, statusID int64) error {
	details, _ := json.Marshal(Details{PipelineID: pipelineID, StatusID: statusID, LeadTag: leadTag})
	return s.LogEvent(ctx, Event{
		EventType:      EventLeadMoved,
		LeadID:         leadID,
		ConversationID: conversationID,
		Category:       category,
		Details:        details,
	})
}

// LogStopTagged records the STOP tag being applied.
func (s *Service) LogStopTagged(ctx context.Context, leadID int64, conversationID, category, tag string) error {
	return s.LogEvent(ctx, Event{
		EventType:      EventStopTagged,
		LeadID:         leadID,
		ConversationID: conversationID,
		Category:       category,
		Tags:           []string{tag},
	})
}

// LogMessageIgnored records a message skipped for a suppressed lead.
func (s *Service) LogMessageIgnored(ctx context.Context, leadID int64, conversationID, userMessage string) error {
	return s.LogEvent(ctx, Event{
		EventType:      EventMessageIgnored,
		LeadID:         leadID,
		ConversationID: conversationID,
		Category:       "ignored",
		UserMessage:    userMessage,
	})
}

// LogRouteFailed records a CRM write that failed after delivery.
func (s *Service) LogRouteFailed(ctx context.Context, leadID int64, conversationID, leadTag string, routeErr error) error {
	details := Details{LeadTag: leadTag}
	if routeErr != nil {
		details.Error = routeErr.Error()
	}
	raw, _ := json.Marshal(details)
	return s.LogEvent(ctx, Event{
		EventType:      EventRouteFailed,
		LeadID:         leadID,
		ConversationID: conversationID,
		Category:       "error",
		Details:        raw,
	})
}

// Filter specifies criteria for querying audit events.
type Filter struct {
	LeadID    int64
	EventType EventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// QueryEvents retrieves audit events newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, lead_id, conversation_id, category,
			   tags, user_message, details, created_at
		FROM crm_audit_events
		WHERE 1 = 1
	`
	var args []any
	argIdx := 1

	if filter.LeadID > 0 {
		query += fmt.Sprintf(" AND lead_id = $%d", argIdx)
		args = append(args, filter.LeadID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, string(filter.EventType))
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e                         Event
			eventType                 string
			convID, category, userMsg sql.NullString
			details                   []byte
		)
		if err := rows.Scan(
			&e.ID, &eventType, &e.LeadID, &convID, &category,
			pq.Array(&e.Tags), &userMsg, &details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.EventType = EventType(eventType)
		e.ConversationID = convID.String
		e.Category = category.String
		e.UserMessage = userMsg.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
