package conversation

import "strings"

type ProgressStage string

const (
	ProgressUnknown ProgressStage = ""
	ProgressInitial ProgressStage = "initial"
	ProgressPartial ProgressStage = "partial"
)

type PaymentMode string

const (
	PaymentUnknown    PaymentMode = ""
	PaymentIndividual PaymentMode = "individual"
	PaymentGroup      PaymentMode = "group"
)

// ClientProfile holds the qualifying facts derived from a session's history.
type ClientProfile struct {
	University               string        `json:"university,omitempty"`
	Major                    string        `json:"major,omitempty"`
	HasSource                *bool         `json:"hasSource,omitempty"`
	ProgressStage            ProgressStage `json:"progressStage,omitempty"`
	DeliveryDate             string        `json:"deliveryDate,omitempty"`
	PaymentMode              PaymentMode   `json:"paymentMode,omitempty"`
	DocumentSubmitted        bool          `json:"documentSubmitted"`
	RequiresDocumentForQuote bool          `json:"requiresDocumentForQuote"`
}

// Qualified reports whether every fact needed for a quote is known.
func (p ClientProfile) Qualified() bool {
	return p.University != "" &&
		p.Major != "" &&
		p.ProgressStage != ProgressUnknown &&
		p.DeliveryDate != "" &&
		p.PaymentMode != PaymentUnknown
}

// NextQuestion returns the question for the first missing qualifying fact, or
// "" when the profile is qualified.
func (p ClientProfile) NextQuestion() string {
	switch {
	case p.University == "" && p.Major == "":
		return "¿En qué universidad estudias y cuál es tu carrera?"
	case p.University == "":
		return "¿En qué universidad estás realizando tu trabajo?"
	case p.Major == "":
		return "¿Cuál es tu carrera?"
	case p.ProgressStage == ProgressUnknown:
		return "¿Ya tienes un avance de tu tesis o estás empezando desde cero?"
	case p.DeliveryDate == "":
		return "¿Para qué fecha necesitas presentarlo?"
	case p.PaymentMode == PaymentUnknown:
		return "¿La inversión la asumirías de manera individual o en grupo?"
	}
	return ""
}

// Summary renders the known facts as a short note for the completion context.
func (p ClientProfile) Summary() string {
	var parts []string
	if p.University != "" {
		parts = append(parts, "Estudia en "+p.University+".")
	}
	if p.Major != "" {
		parts = append(parts, "Su carrera es "+p.Major+".")
	}
	if p.HasSource != nil {
		if *p.HasSource {
			parts = append(parts, "Cuenta con la empresa o fuente de datos.")
		} else {
			parts = append(parts, "Aún no cuenta con una fuente de datos.")
		}
	}
	switch p.ProgressStage {
	case ProgressInitial:
		parts = append(parts, "Está empezando desde cero.")
	case ProgressPartial:
		parts = append(parts, "Ya tiene un avance de su trabajo.")
	}
	if p.DeliveryDate != "" {
		parts = append(parts, "Necesita presentarlo para "+p.DeliveryDate+".")
	}
	switch p.PaymentMode {
	case PaymentIndividual:
		parts = append(parts, "Asumirá la inversión de forma individual.")
	case PaymentGroup:
		parts = append(parts, "Asumirá la inversión en grupo.")
	}
	if p.DocumentSubmitted {
		parts = append(parts, "Ya envió su documento de avance.")
	}
	if len(parts) == 0 {
		return ""
	}
	return "Datos conocidos del cliente: " + strings.Join(parts, " ")
}
