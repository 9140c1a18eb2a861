package conversation

import "regexp"

var priceInquiryRE = regexp.MustCompile(`\bprecio|\bcosto|\bcuesta\b|\bcuanto (?:sale|cobran|seria|es|me)\b|\btarifa|\binversion\b|\bcotizacion|\bcotizar|\bpresupuesto`)

// GateDecision is a canned reply that replaces full generation for this turn.
type GateDecision struct {
	Reply string
	Tag   LeadTag
	Stage string
	// DocumentReceived marks that this turn carried the client's document.
	DocumentReceived bool
}

// QualificationGate enforces the qualify-before-quote sequence.
type QualificationGate struct{}

// Evaluate returns the first gate that applies, or nil to continue to generation.
func (QualificationGate) Evaluate(profile ClientProfile, message string, hasDocument bool) *GateDecision {
	if !profile.Qualified() && priceInquiryRE.MatchString(foldText(message)) {
		return &GateDecision{
			Reply: priceRedirectPrefix + profile.NextQuestion(),
			Tag:   TagPreQualifyBeforePrice,
			Stage: StagePreQualification,
		}
	}

	if !hasDocument && !profile.DocumentSubmitted {
		if profile.Qualified() && profile.RequiresDocumentForQuote {
			return &GateDecision{Reply: quoteDocumentReply, Tag: TagQuoteDocumentRequest, Stage: StageAwaitingDocument}
		}
		if profile.ProgressStage == ProgressPartial {
			return &GateDecision{Reply: immediateDocumentReply, Tag: TagImmediateDocumentRequest, Stage: StageAwaitingDocument}
		}
	}

	if hasDocument {
		if !profile.Qualified() {
			return &GateDecision{
				Reply:            documentReceivedPrefix + lowerFirst(profile.NextQuestion()),
				Tag:              TagDocumentReceivedUnqualified,
				Stage:            StageQualification,
				DocumentReceived: true,
			}
		}
		return &GateDecision{
			Reply:            documentReceivedQuoting,
			Tag:              TagDocumentReceivedQualified,
			Stage:            StageAwaitingQuote,
			DocumentReceived: true,
		}
	}
	return nil
}

// lowerFirst lowercases the first letter after an opening "¿".
func lowerFirst(q string) string {
	r := []rune(q)
	for i, c := range r {
		if c == '¿' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			r[i] = c + ('a' - 'A')
		}
		break
	}
	return string(r)
}
