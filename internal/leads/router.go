package leads

import (
	"context"
	"fmt"
	"strings"

	"github.com/alejandria/sales-ai-platform/internal/conversation"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

// DefaultStopTag is the CRM tag that takes a lead out of the bot's hands.
const DefaultStopTag = "STOP"

// CRM is the subset of the CRM API the router drives.
type CRM interface {
	GetLead(ctx context.Context, leadID int64) (*Lead, error)
	MoveLead(ctx context.Context, leadID, pipelineID, statusID int64) error
	AddStopTag(ctx context.Context, leadID int64, tag string) error
	HasStopTag(ctx context.Context, leadID int64, tag string) (bool, error)
}

// PipelineStages holds the CRM ids of the sales pipeline stages.
type PipelineStages struct {
	PipelineID   int64
	ColdStatusID int64
	WarmStatusID int64
}

func (s PipelineStages) configured() bool {
	return s.PipelineID > 0 && s.ColdStatusID > 0 && s.WarmStatusID > 0
}

// Decision describes what the router did for one turn.
type Decision struct {
	Category   Category `json:"category"`
	Moved      bool     `json:"moved"`
	PipelineID int64    `json:"pipeline_id,omitempty"`
	StatusID   int64    `json:"status_id,omitempty"`
	StopTagged bool     `json:"stop_tagged"`
	StopTag    string   `json:"stop_tag,omitempty"`
}

// Router turns lead tags into pipeline moves and the STOP tag.
type Router struct {
	crm     CRM
	stages  PipelineStages
	stopTag string
	logger  *logging.Logger
}

// NewRouter wires a router. An empty stopTag means DefaultStopTag.
func NewRouter(crm CRM, stages PipelineStages, stopTag string, logger *logging.Logger) *Router {
	if crm == nil {
		panic("leads: crm client cannot be nil")
	}
	if strings.TrimSpace(stopTag) == "" {
		stopTag = DefaultStopTag
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Router{crm: crm, stages: stages, stopTag: stopTag, logger: logger}
}

// IsSuppressed reports whether the lead carries the STOP tag.
func (r *Router) IsSuppressed(ctx context.Context, leadID int64) (bool, error) {
	if leadID <= 0 {
		return false, ErrInvalidLeadID
	}
	stopped, err := r.crm.HasStopTag(ctx, leadID, r.stopTag)
	if err != nil {
		return false, fmt.Errorf("leads: check stop tag: %w", err)
	}
	return stopped, nil
}

// Route applies the CRM side effects of a turn's tag.
// Cold leads move to the cold stage. Warm and quote leads move to the warm
// stage and then get the STOP tag. Leads are never moved back from the warm
// stage, and the STOP tag is never removed.
func (r *Router) Route(ctx context.Context, leadID int64, tag conversation.LeadTag) (Decision, error) {
	decision := Decision{Category: Classify(tag)}

	var target int64
	switch decision.Category {
	case CategoryCold:
		target = r.stages.ColdStatusID
	case CategoryWarm, CategoryQuote:
		target = r.stages.WarmStatusID
	default:
		return decision, nil
	}

	if leadID <= 0 {
		return decision, ErrInvalidLeadID
	}
	if !r.stages.configured() {
		return decision, ErrStagesNotConfigured
	}

	lead, err := r.crm.GetLead(ctx, leadID)
	if err != nil {
		return decision, fmt.Errorf("leads: get lead: %w", err)
	}

	log := r.logger.With("lead_id", leadID, "category", string(decision.Category))

	atWarm := lead.PipelineID == r.stages.PipelineID && lead.StatusID == r.stages.WarmStatusID
	alreadyThere := lead.PipelineID == r.stages.PipelineID && lead.StatusID == target
	switch {
	case alreadyThere:
		log.Debug("lead already at target stage", "status_id", target)
	case decision.Category == CategoryCold && atWarm:
		log.Info("keeping promoted lead out of cold stage")
	default:
		if err := r.crm.MoveLead(ctx, leadID, r.stages.PipelineID, target); err != nil {
			return decision, fmt.Errorf("leads: move lead: %w", err)
		}
		decision.Moved = true
		decision.PipelineID = r.stages.PipelineID
		decision.StatusID = target
		log.Info("lead moved", "pipeline_id", r.stages.PipelineID, "status_id", target)
	}

	if !decision.Category.Promoted() {
		return decision, nil
	}
	if lead.HasTag(r.stopTag) {
		return decision, nil
	}
	if err := r.crm.AddStopTag(ctx, leadID, r.stopTag); err != nil {
		return decision, fmt.Errorf("leads: add stop tag: %w", err)
	}
	decision.StopTagged = true
	decision.StopTag = r.stopTag
	log.Info("stop tag added", "tag", r.stopTag)
	return decision, nil
}
