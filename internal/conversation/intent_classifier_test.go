package conversation

import (
	"regexp"
	"testing"
)

func TestIntentClassifier(t *testing.T) {
	classifier := NewIntentClassifier()
	tests := []struct {
		message string
		want    Intent
	}{
		{"gracias, nos vemos", IntentFarewell},
		{"Hasta luego!", IntentFarewell},
		{"Muchas gracias, quiero aprender", IntentFarewell},
		{"quiero aprender a hacer mi tesis solo", IntentLearn},
		{"¿Dictan algún curso de metodología?", IntentLearn},
		{"necesito que me corrijan el formato APA", IntentOneOffJob},
		{"me salió 40% de similitud en Turnitin", IntentOneOffJob},
		{"¿cuánto cuesta la tesis?", IntentNone},
		{"hola, estoy haciendo mi proyecto", IntentNone},
		{"estoy llevando el curso de tesis en la UCV y necesito que me ayuden con mi proyecto", IntentNone},
		{"en el taller de tesis me piden el primer capítulo", IntentNone},
		{"te envío mi avance en formato PDF", IntentNone},
		{"el pago lo hago por mi cuenta", IntentNone},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := classifier.Classify(tt.message); got != tt.want {
				t.Fatalf("Classify(%q) = %s, want %s", tt.message, got, tt.want)
			}
		})
	}
}

func TestIntentClassifierCustomRules(t *testing.T) {
	classifier := NewIntentClassifier(IntentRule{Intent: IntentOneOffJob, Pattern: regexp.MustCompile(`diapositivas`)})
	if got := classifier.Classify("necesito unas diapositivas"); got != IntentOneOffJob {
		t.Fatalf("got %s", got)
	}
	if got := classifier.Classify("gracias"); got != IntentNone {
		t.Fatalf("default rules should be replaced, got %s", got)
	}
}
