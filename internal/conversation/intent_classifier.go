package conversation

import "regexp"

// Intent is an off-ramp that bypasses the main sales flow.
type Intent int

const (
	IntentNone Intent = iota
	IntentFarewell
	IntentLearn
	IntentOneOffJob
)

func (i Intent) String() string {
	switch i {
	case IntentFarewell:
		return "farewell"
	case IntentLearn:
		return "learn"
	case IntentOneOffJob:
		return "one-off-job"
	}
	return "none"
}

// IntentRule maps a pattern over the folded message to an intent.
type IntentRule struct {
	Intent  Intent
	Pattern *regexp.Regexp
}

var (
	farewellRE = regexp.MustCompile(`\bgracias\b|\bnos vemos\b|\bhasta luego\b|\bhasta pronto\b|\badios\b|\bchau\b|\bchao\b`)
	// A course or workshop the client is already enrolled in ("el curso de tesis") is not a wish to learn.
	learnRE  = regexp.MustCompile(`\bquiero aprender\b|\baprender a\b|\bhacerl[oa] (?:yo )?sol[oa]\b|\bhacerl[oa] por mi cuenta\b|\bme ensen(?:as|an|arias)\b|\b(?:algun|algunos|sus|dictan|ofrecen|tienen|dan) (?:cursos?|talleres?|clases)\b|\bcapacitacion\b|\bcapacitarme\b`)
	oneOffRE = regexp.MustCompile(`\b(?:el|darle|dar|corregir|revisar|arreglar|acomodar) formato\b|\bnormas? apa\b|\bapa 7\b|\bvancouver\b|\bcorregir\b|\bcorreccion\b|\bortografia\b|\bturnitin\b|\bsimilitud\b|\bplagio\b|\bparafrase|\bsolo (?:el|un|una) (?:capitulo|parte)\b`)
)

// DefaultIntentRules returns the built-in off-ramps in priority order.
func DefaultIntentRules() []IntentRule {
	return []IntentRule{
		{Intent: IntentFarewell, Pattern: farewellRE},
		{Intent: IntentLearn, Pattern: learnRE},
		{Intent: IntentOneOffJob, Pattern: oneOffRE},
	}
}

// IntentClassifier evaluates its rules in order; the first match wins.
type IntentClassifier struct {
	rules []IntentRule
}

func NewIntentClassifier(rules ...IntentRule) *IntentClassifier {
	if len(rules) == 0 {
		rules = DefaultIntentRules()
	}
	return &IntentClassifier{rules: rules}
}

// Classify returns the intent of message, or IntentNone.
func (c *IntentClassifier) Classify(message string) Intent {
	folded := foldText(message)
	for _, rule := range c.rules {
		if rule.Pattern.MatchString(folded) {
			return rule.Intent
		}
	}
	return IntentNone
}
