package conversation

import (
	"regexp"
	"strings"
)

// Field names a ClientProfile attribute a FactRule can fill.
type Field int

const (
	FieldUniversity Field = iota
	FieldMajor
	FieldSource
	FieldProgress
	FieldDeliveryDate
	FieldPayment
	FieldDocument
)

// Utterance is one folded user turn plus the assistant turn right before it.
type Utterance struct {
	Text              string
	PreviousAssistant string
}

// FactRule fills one field when Match succeeds. Values for the enumerated
// fields are "yes"/"no" (source), ProgressStage and PaymentMode strings.
type FactRule struct {
	Field Field
	Match func(u Utterance) (string, bool)
}

// documentMarker tags persisted user turns that carried an attachment.
const documentMarker = "[documento adjunto"

// DocumentTurnText is the history form of a user message with an attachment.
func DocumentTurnText(prompt string, doc *Attachment) string {
	if doc == nil {
		return prompt
	}
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		name = "archivo"
	}
	return strings.TrimSpace(documentMarker + ": " + name + "] " + prompt)
}

// fixed returns a rule that yields value when re matches.
func fixed(field Field, re *regexp.Regexp, value string) FactRule {
	return FactRule{Field: field, Match: func(u Utterance) (string, bool) {
		if re.MatchString(u.Text) {
			return value, true
		}
		return "", false
	}}
}

// captured returns a rule yielding the title-cased first capture group.
func captured(field Field, re *regexp.Regexp, prefix string) FactRule {
	return FactRule{Field: field, Match: func(u Utterance) (string, bool) {
		m := re.FindStringSubmatch(u.Text)
		if len(m) < 2 || strings.TrimSpace(m[1]) == "" {
			return "", false
		}
		return prefix + titleCase(m[1]), true
	}}
}

// token returns a rule yielding the matched text itself.
func token(field Field, re *regexp.Regexp) FactRule {
	return FactRule{Field: field, Match: func(u Utterance) (string, bool) {
		if m := re.FindString(u.Text); m != "" {
			return strings.TrimSpace(m), true
		}
		return "", false
	}}
}

var universities = []struct {
	pattern string
	name    string
}{
	{`\bucv\b|cesar vallejo`, "UCV"},
	{`\bunmsm\b|san marcos`, "UNMSM"},
	{`\bpucp\b|catolica del peru`, "PUCP"},
	{`\bupc\b|peruana de ciencias aplicadas`, "UPC"},
	{`\busmp\b|san martin de porres`, "USMP"},
	{`\bupn\b|privada del norte`, "UPN"},
	{`\butp\b|tecnologica del peru`, "UTP"},
	{`\bupch\b|cayetano heredia`, "UPCH"},
	{`\bupao\b|antenor orrego`, "UPAO"},
	{`\buap\b|alas peruanas`, "UAP"},
	{`\busil\b|san ignacio de loyola`, "USIL"},
	{`\bunfv\b|federico villarreal`, "UNFV"},
	{`\bucsur\b|cientifica del sur`, "UCSUR"},
	{`\buss\b|senor de sipan`, "USS"},
	{`\burp\b|ricardo palma`, "URP"},
	{`\bunac\b|nacional del callao`, "UNAC"},
	{`\bulima\b|universidad de lima`, "Universidad de Lima"},
	{`\buniversidad continental\b`, "Universidad Continental"},
}

var majors = []struct {
	pattern string
	name    string
}{
	{`\bpsicologia\b`, "Psicología"},
	{`\bderecho\b`, "Derecho"},
	{`\benfermeria\b`, "Enfermería"},
	{`\bobstetricia\b`, "Obstetricia"},
	{`\bmedicina humana\b|\bmedicina\b`, "Medicina"},
	{`\bodontologia\b`, "Odontología"},
	{`\bnutricion\b`, "Nutrición"},
	{`\btecnologia medica\b`, "Tecnología Médica"},
	{`\bingenieria civil\b`, "Ingeniería Civil"},
	{`\bingenieria industrial\b`, "Ingeniería Industrial"},
	{`\bingenieria de sistemas\b`, "Ingeniería de Sistemas"},
	{`\bingenieria ambiental\b`, "Ingeniería Ambiental"},
	{`\badministracion\b`, "Administración"},
	{`\bcontabilidad\b`, "Contabilidad"},
	{`\beconomia\b`, "Economía"},
	{`\bmarketing\b`, "Marketing"},
	{`\bnegocios internacionales\b`, "Negocios Internacionales"},
	{`\bgestion publica\b`, "Gestión Pública"},
	{`\bciencias de la comunicacion\b|\bcomunicaciones\b`, "Ciencias de la Comunicación"},
	{`\beducacion\b`, "Educación"},
	{`\barquitectura\b`, "Arquitectura"},
	{`\btrabajo social\b`, "Trabajo Social"},
}

var (
	// Only name forms: "universidad nacional de X", "universidad de X". "la universidad me pide..." is not a name.
	genericUniversityRE = regexp.MustCompile(`\buniversidad\s+((?:nacional|privada|catolica|autonoma|tecnologica|peruana|cientifica|andina|particular|san|santa)\s+[a-z][a-z ]{1,40}?|(?:de|del)\s+[a-z]{4,}[a-z ]{0,36}?)(?:[,.;!?]|\s+(?:y|en|estudio|carrera|me|nos|pide|piden|que|donde|porque)\b|$)`)
	genericMajorRE      = regexp.MustCompile(`\b(?:carrera de|carrera es|licenciatura en|maestria en|doctorado en)\s+([a-z][a-z ]{2,40}?)(?:[,.;!?]|\s+(?:y|en|de la|del)\b|$)`)

	noSourceRE  = regexp.MustCompile(`\bno (?:tengo|cuento con|consigo|tenemos)\b.{0,25}\b(?:empresa|entidad|data|datos|informacion|fuente|acceso)`)
	hasSourceRE = regexp.MustCompile(`\b(?:tengo|cuento con|ya tengo|consegui|tenemos)\b.{0,25}\b(?:empresa|entidad|data|datos|informacion|fuente|acceso)|\btrabajo en\b|\bmi centro de trabajo\b`)

	initialProgressRE = regexp.MustCompile(`desde cero|\bde cero\b|recien (?:empiezo|estoy empezando|comienzo)|estoy empezando|no tengo nada|aun no (?:empiezo|empece|tengo avance)|todavia no (?:empiezo|empece|he empezado)|sin avance|no tengo (?:ningun )?avance|ningun avance`)
	partialProgressRE = regexp.MustCompile(`\bavance|\bavanzad|ya tengo (?:el |la |los |mi )?(?:capitulo|proyecto|marco|introduccion|plan|tesis)|\bme falta|\bobservaciones\b|capitulo [0-9ivx]+|tengo (?:una |la )?parte|ya empece`)
	affirmativeRE     = regexp.MustCompile(`^(?:si|sip|claro|correcto|asi es|exacto|afirmativo|efectivamente|ya|ok|aja)[\s.!]*$`)
	progressAskRE     = regexp.MustCompile(`avance|desde cero|empezando`)

	deliveryDateRE = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b` +
		`|\b\d{1,2}[/-]\d{4}\b` +
		`|\b\d{1,2} de (?:enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre)(?: del? \d{4})?` +
		`|\b(?:enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre)(?: del? \d{4}| \d{4})?\b` +
		`|\bfin(?:es|ales)? de mes\b|\bla proxima semana\b|\bel proximo mes\b|\ben \d+ (?:dias|semanas|meses)\b`)

	groupPaymentRE      = regexp.MustCompile(`\ben grupo\b|\bgrupal\b|\bcon (?:mi|mis) companer|\bsomos (?:\d+|dos|tres|cuatro|cinco)\b|\bentre (?:todos|varios|los dos|las dos)\b`)
	individualPaymentRE = regexp.MustCompile(`\bindividual\b|\byo (?:solo|sola|mismo|misma)\b|\bsolo yo\b|\byo (?:pago|asumo|lo pago|voy a pagar)\b`)
)

// DefaultFactRules returns the built-in rules in priority order.
func DefaultFactRules() []FactRule {
	rules := make([]FactRule, 0, len(universities)+len(majors)+12)
	for _, u := range universities {
		rules = append(rules, fixed(FieldUniversity, regexp.MustCompile(u.pattern), u.name))
	}
	rules = append(rules, captured(FieldUniversity, genericUniversityRE, "Universidad "))
	for _, m := range majors {
		rules = append(rules, fixed(FieldMajor, regexp.MustCompile(m.pattern), m.name))
	}
	rules = append(rules,
		captured(FieldMajor, genericMajorRE, ""),
		fixed(FieldSource, noSourceRE, "no"),
		fixed(FieldSource, hasSourceRE, "yes"),
		fixed(FieldProgress, initialProgressRE, string(ProgressInitial)),
		fixed(FieldProgress, partialProgressRE, string(ProgressPartial)),
		FactRule{Field: FieldProgress, Match: affirmedProgress},
		token(FieldDeliveryDate, deliveryDateRE),
		fixed(FieldPayment, groupPaymentRE, string(PaymentGroup)),
		fixed(FieldPayment, individualPaymentRE, string(PaymentIndividual)),
		FactRule{Field: FieldDocument, Match: func(u Utterance) (string, bool) {
			return "yes", strings.Contains(u.Text, documentMarker)
		}},
	)
	return rules
}

// affirmedProgress treats a bare "sí" answering a progress question as partial progress.
func affirmedProgress(u Utterance) (string, bool) {
	if u.PreviousAssistant == "" || !progressAskRE.MatchString(u.PreviousAssistant) {
		return "", false
	}
	if !affirmativeRE.MatchString(u.Text) {
		return "", false
	}
	return string(ProgressPartial), true
}

// FactExtractor derives a ClientProfile by replaying user turns in order.
// The first rule that matches a field wins; later turns never overwrite it.
type FactExtractor struct {
	rules []FactRule
}

// NewFactExtractor builds an extractor; with no rules it uses DefaultFactRules.
func NewFactExtractor(rules ...FactRule) *FactExtractor {
	if len(rules) == 0 {
		rules = DefaultFactRules()
	}
	return &FactExtractor{rules: rules}
}

var defaultExtractor = NewFactExtractor()

// ExtractProfile replays history with the default rules.
func ExtractProfile(history []Turn) ClientProfile {
	return defaultExtractor.Extract(history)
}

// Extract replays every user turn of history.
func (e *FactExtractor) Extract(history []Turn) ClientProfile {
	var profile ClientProfile
	previousAssistant := ""
	for _, turn := range history {
		switch turn.Role {
		case ChatRoleAssistant:
			previousAssistant = turn.Text
		case ChatRoleUser:
			profile = e.Apply(profile, previousAssistant, turn.Text)
			previousAssistant = ""
		}
	}
	return profile
}

// Apply folds one more user utterance into profile.
func (e *FactExtractor) Apply(profile ClientProfile, previousAssistant, userText string) ClientProfile {
	u := Utterance{Text: foldText(userText), PreviousAssistant: foldText(previousAssistant)}
	for _, rule := range e.rules {
		if fieldSet(profile, rule.Field) {
			continue
		}
		value, ok := rule.Match(u)
		if !ok {
			continue
		}
		setField(&profile, rule.Field, value)
	}
	profile.RequiresDocumentForQuote = profile.ProgressStage == ProgressPartial
	return profile
}

func fieldSet(p ClientProfile, f Field) bool {
	switch f {
	case FieldUniversity:
		return p.University != ""
	case FieldMajor:
		return p.Major != ""
	case FieldSource:
		return p.HasSource != nil
	case FieldProgress:
		return p.ProgressStage != ProgressUnknown
	case FieldDeliveryDate:
		return p.DeliveryDate != ""
	case FieldPayment:
		return p.PaymentMode != PaymentUnknown
	case FieldDocument:
		return p.DocumentSubmitted
	}
	return true
}

func setField(p *ClientProfile, f Field, value string) {
	switch f {
	case FieldUniversity:
		p.University = value
	case FieldMajor:
		p.Major = value
	case FieldSource:
		has := value == "yes"
		p.HasSource = &has
	case FieldProgress:
		p.ProgressStage = ProgressStage(value)
	case FieldDeliveryDate:
		p.DeliveryDate = value
	case FieldPayment:
		p.PaymentMode = PaymentMode(value)
	case FieldDocument:
		p.DocumentSubmitted = value == "yes"
	}
}
