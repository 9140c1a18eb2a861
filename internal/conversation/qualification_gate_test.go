package conversation

import (
	"strings"
	"testing"
)

func qualifiedProfile(progress ProgressStage) ClientProfile {
	return ClientProfile{
		University:               "UCV",
		Major:                    "Psicología",
		ProgressStage:            progress,
		DeliveryDate:             "12/2024",
		PaymentMode:              PaymentIndividual,
		RequiresDocumentForQuote: progress == ProgressPartial,
	}
}

func TestGatePriceBeforeQualificationRedirects(t *testing.T) {
	var gate QualificationGate
	for _, msg := range []string{"¿cuánto cuesta?", "me pasas el precio", "quiero cotizar mi tesis", "¿Cuánto sale?"} {
		decision := gate.Evaluate(ClientProfile{}, msg, false)
		if decision == nil || decision.Tag != TagPreQualifyBeforePrice {
			t.Fatalf("%q: expected price redirect, got %+v", msg, decision)
		}
		if !strings.Contains(decision.Reply, "universidad") {
			t.Fatalf("%q: redirect should ask for the first missing fact: %q", msg, decision.Reply)
		}
	}

	partial := ClientProfile{University: "UCV", Major: "Derecho"}
	decision := gate.Evaluate(partial, "precio?", false)
	if decision == nil || !strings.Contains(decision.Reply, "avance") {
		t.Fatalf("expected progress question, got %+v", decision)
	}
}

func TestGateQualifiedPartialWithoutDocumentRequestsQuoteDocument(t *testing.T) {
	var gate QualificationGate
	decision := gate.Evaluate(qualifiedProfile(ProgressPartial), "¿y cuánto sería?", false)
	if decision == nil || decision.Tag != TagQuoteDocumentRequest {
		t.Fatalf("expected quote-document-request, got %+v", decision)
	}
	if decision.Stage != StageAwaitingDocument {
		t.Fatalf("stage = %q", decision.Stage)
	}
}

func TestGatePartialProgressAlwaysRequestsDocument(t *testing.T) {
	var gate QualificationGate
	profiles := []ClientProfile{
		{ProgressStage: ProgressPartial, RequiresDocumentForQuote: true},
		{University: "UPN", ProgressStage: ProgressPartial, RequiresDocumentForQuote: true},
		qualifiedProfile(ProgressPartial),
	}
	messages := []string{"hola", "ok", "ya tengo el capítulo uno", "me ayudas con mi tesis?", "para cuándo estaría?"}
	for _, p := range profiles {
		for _, msg := range messages {
			decision := gate.Evaluate(p, msg, false)
			if decision == nil {
				t.Fatalf("profile %+v message %q reached generation", p, msg)
			}
			if decision.Tag != TagImmediateDocumentRequest && decision.Tag != TagQuoteDocumentRequest {
				t.Fatalf("profile %+v message %q got %s", p, msg, decision.Tag)
			}
		}
	}
}

func TestGateDocumentAttached(t *testing.T) {
	var gate QualificationGate

	decision := gate.Evaluate(ClientProfile{University: "UCV"}, "aquí está", true)
	if decision == nil || decision.Tag != TagDocumentReceivedUnqualified || !decision.DocumentReceived {
		t.Fatalf("expected unqualified acknowledgement, got %+v", decision)
	}
	if !strings.Contains(decision.Reply, "¿cuál es tu carrera?") {
		t.Fatalf("expected follow-up question, got %q", decision.Reply)
	}

	decision = gate.Evaluate(qualifiedProfile(ProgressPartial), "te lo envío", true)
	if decision == nil || decision.Tag != TagDocumentReceivedQualified || decision.Stage != StageAwaitingQuote {
		t.Fatalf("expected qualified acknowledgement, got %+v", decision)
	}
}

func TestGatePassesThrough(t *testing.T) {
	var gate QualificationGate
	if d := gate.Evaluate(qualifiedProfile(ProgressInitial), "¿cómo trabajan?", false); d != nil {
		t.Fatalf("expected generation, got %+v", d)
	}
	submitted := qualifiedProfile(ProgressPartial)
	submitted.DocumentSubmitted = true
	if d := gate.Evaluate(submitted, "¿ya revisaron?", false); d != nil {
		t.Fatalf("document already submitted, got %+v", d)
	}
	if d := gate.Evaluate(ClientProfile{}, "hola", false); d != nil {
		t.Fatalf("fresh lead should reach generation, got %+v", d)
	}
}
