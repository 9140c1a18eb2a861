package conversation

import (
	"reflect"
	"regexp"
	"strings"
	"testing"
)

func userTurn(text string) Turn      { return Turn{Role: ChatRoleUser, Text: text} }
func assistantTurn(text string) Turn { return Turn{Role: ChatRoleAssistant, Text: text} }

func TestExtractProfileQualifiedConversation(t *testing.T) {
	history := []Turn{
		userTurn("Hola, soy de la UCV, estudio Psicología"),
		assistantTurn("¿Ya tienes un avance o estás empezando desde cero?"),
		userTurn("sí"),
		assistantTurn("¿Para qué fecha necesitas presentarlo?"),
		userTurn("para 12/2024"),
		userTurn("yo asumo el pago, individual"),
	}

	profile := ExtractProfile(history)

	if profile.University != "UCV" {
		t.Fatalf("university = %q", profile.University)
	}
	if profile.Major != "Psicología" {
		t.Fatalf("major = %q", profile.Major)
	}
	if profile.ProgressStage != ProgressPartial {
		t.Fatalf("progress = %q", profile.ProgressStage)
	}
	if profile.DeliveryDate != "12/2024" {
		t.Fatalf("delivery date = %q", profile.DeliveryDate)
	}
	if profile.PaymentMode != PaymentIndividual {
		t.Fatalf("payment = %q", profile.PaymentMode)
	}
	if !profile.Qualified() {
		t.Fatalf("expected qualified profile: %+v", profile)
	}
	if !profile.RequiresDocumentForQuote {
		t.Fatalf("partial progress must require a document")
	}
	if profile.NextQuestion() != "" {
		t.Fatalf("qualified profile should have no next question")
	}
}

func TestExtractProfileIsDeterministic(t *testing.T) {
	history := []Turn{
		userTurn("Estudio enfermería en la San Marcos, no tengo la data todavía"),
		assistantTurn("¿Ya tienes un avance?"),
		userTurn("recién estoy empezando, somos tres compañeros"),
	}
	first := ExtractProfile(history)
	second := ExtractProfile(history)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("extraction not deterministic: %+v vs %+v", first, second)
	}
	if first.University != "UNMSM" || first.Major != "Enfermería" {
		t.Fatalf("unexpected profile %+v", first)
	}
	if first.HasSource == nil || *first.HasSource {
		t.Fatalf("expected negative source, got %v", first.HasSource)
	}
	if first.ProgressStage != ProgressInitial || first.PaymentMode != PaymentGroup {
		t.Fatalf("unexpected progress/payment %+v", first)
	}
	if first.RequiresDocumentForQuote {
		t.Fatalf("initial progress must not require a document")
	}
}

func TestExtractProfileFirstMatchWins(t *testing.T) {
	history := []Turn{
		userTurn("estudio derecho en la UCV"),
		userTurn("empiezo desde cero"),
		userTurn("no tengo la empresa"),
		userTurn("perdón, es en la universidad de lima, estudio psicología, ya tengo avance y ya tengo la empresa"),
	}
	profile := ExtractProfile(history)
	if profile.University != "UCV" || profile.Major != "Derecho" {
		t.Fatalf("later turns overwrote earlier facts: %+v", profile)
	}
	if profile.ProgressStage != ProgressInitial {
		t.Fatalf("progress overwritten: %q", profile.ProgressStage)
	}
	if profile.HasSource == nil || *profile.HasSource {
		t.Fatalf("source overwritten: %v", profile.HasSource)
	}
}

func TestExtractProfileIsMonotonicUnderAppend(t *testing.T) {
	base := []Turn{userTurn("soy de la UPC, estudio marketing"), userTurn("tengo avance")}
	before := ExtractProfile(base)
	after := ExtractProfile(append(base, userTurn("ahora estoy en la PUCP estudiando derecho desde cero")))
	if before.University != after.University || before.Major != after.Major || before.ProgressStage != after.ProgressStage {
		t.Fatalf("appending turns changed set fields: %+v -> %+v", before, after)
	}
}

func TestAffirmativeOnlyCountsAfterProgressQuestion(t *testing.T) {
	history := []Turn{
		assistantTurn("¿En qué universidad estudias?"),
		userTurn("sí"),
	}
	if got := ExtractProfile(history).ProgressStage; got != ProgressUnknown {
		t.Fatalf("expected unknown progress, got %q", got)
	}
}

func TestExtractDocumentMarker(t *testing.T) {
	history := []Turn{userTurn(DocumentTurnText("aquí está mi avance", &Attachment{Name: "tesis.pdf"}))}
	profile := ExtractProfile(history)
	if !profile.DocumentSubmitted {
		t.Fatalf("expected document submitted")
	}
}

func TestExtractGenericUniversityAndMajor(t *testing.T) {
	profile := ExtractProfile([]Turn{userTurn("Estudio en la Universidad Nacional de Trujillo, carrera de biología")})
	if profile.University != "Universidad Nacional De Trujillo" {
		t.Fatalf("university = %q", profile.University)
	}
	if profile.Major != "Biologia" {
		t.Fatalf("major = %q", profile.Major)
	}
}

func TestExtractGenericUniversityIgnoresNonNames(t *testing.T) {
	for _, text := range []string{
		"la universidad me pide entregar pronto",
		"la universidad de la que te hablé",
		"mi universidad es muy exigente",
	} {
		t.Run(text, func(t *testing.T) {
			if got := ExtractProfile([]Turn{userTurn(text)}).University; got != "" {
				t.Fatalf("university = %q, want empty", got)
			}
		})
	}

	profile := ExtractProfile([]Turn{userTurn("estudio en la universidad de piura y me falta el capítulo 2")})
	if profile.University != "Universidad De Piura" {
		t.Fatalf("university = %q", profile.University)
	}
}

func TestExtractDeliveryDates(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"necesito presentarlo el 15 de marzo", "15 de marzo"},
		{"lo entrego para fin de mes", "fin de mes"},
		{"sustento en diciembre del 2025", "diciembre del 2025"},
		{"la fecha es 10/11/2025", "10/11/2025"},
		{"en 3 semanas", "en 3 semanas"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := ExtractProfile([]Turn{userTurn(tt.text)}).DeliveryDate; got != tt.want {
				t.Fatalf("delivery date = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCustomRulesReplaceDefaults(t *testing.T) {
	extractor := NewFactExtractor(fixed(FieldUniversity, regexp.MustCompile(`instituto`), "Instituto"))
	profile := extractor.Extract([]Turn{userTurn("estudio en un instituto, en la UCV")})
	if profile.University != "Instituto" {
		t.Fatalf("custom rule not applied: %+v", profile)
	}
	if profile.Major != "" {
		t.Fatalf("default rules should not run: %+v", profile)
	}
}

func TestProfileSummary(t *testing.T) {
	has := true
	profile := ClientProfile{University: "UCV", Major: "Derecho", HasSource: &has, ProgressStage: ProgressPartial}
	summary := profile.Summary()
	for _, want := range []string{"UCV", "Derecho", "fuente de datos", "avance"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary %q missing %q", summary, want)
		}
	}
	if (ClientProfile{}).Summary() != "" {
		t.Fatalf("empty profile should have empty summary")
	}
}
