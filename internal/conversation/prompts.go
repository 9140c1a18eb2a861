package conversation

import (
	"fmt"
	"os"
	"strings"
)

// introMarker identifies the canned introduction in assistant turns.
const introMarker = "asesor virtual de alejandria"

const introTurn = "¡Hola! Soy el asesor virtual de Alejandría Consultores. Te acompaño en tu tesis, proyecto de investigación o trabajo académico."

const farewellReply = "Gracias por tu confianza 🌟. Estamos listos para ayudarte cuando decidas avanzar con tu asesoría."

const defaultSystemPrompt = `Eres el asesor comercial virtual de Alejandría Consultores, una consultora que acompaña a estudiantes en tesis, proyectos de investigación, levantamiento de observaciones y trabajos académicos.

Objetivo: calificar al cliente y llevarlo a una cotización o a una reunión con un asesor académico.

Antes de hablar de precios necesitas conocer, una pregunta a la vez:
1. Universidad y carrera.
2. Si cuenta con la empresa, entidad o fuente de datos para su investigación.
3. Si ya tiene un avance o empieza desde cero, y para qué fecha necesita presentarlo.
4. Si la inversión la asumirá de manera individual o en grupo.

Reglas:
- Responde en español, con un tono cálido y profesional, en un solo párrafo breve.
- No uses listas, viñetas ni asteriscos.
- No inventes precios ni plazos; la cotización la prepara el área académica.
- Cuando el cliente esté calificado, ofrécele agendar una reunión por Meet o una llamada.`

const educationalInstruction = `El cliente quiere aprender a desarrollar su trabajo por su cuenta y no busca contratar una asesoría. Responde en español, en dos o tres oraciones breves y amables: valora su interés y dile que, si más adelante decide que lo acompañemos en su investigación, aquí estaremos para ayudarle.
Prohibido:
- Enseñar contenido, explicar pasos o dar consejos metodológicos.
- Compartir recursos, enlaces, libros, plantillas o materiales.
- Mencionar áreas o departamentos internos.
- Hacer preguntas de calificación u ofrecer una reunión o llamada.
No uses listas ni asteriscos.`

const oneOffInstruction = `El cliente necesita un trabajo puntual sobre un documento (formato, normas APA, corrección, similitud o un capítulo específico). Responde en español, en un solo párrafo breve: confirma que podemos ayudarle y pídele que envíe el archivo en PDF o Word para revisarlo y cotizar.
Prohibido:
- Hacer preguntas de calificación (universidad, carrera, avance, fecha o forma de pago).
- Ofrecer una reunión o llamada.
No uses listas ni asteriscos.`

const (
	priceRedirectPrefix     = "Con gusto te comparto la inversión, pero primero necesito conocer tu caso para darte un monto exacto. "
	immediateDocumentReply  = "¡Excelente que ya tengas un avance! ¿Podrías enviarme el documento que tienes hasta ahora en PDF o Word? Así el área académica lo revisa y te da una propuesta exacta."
	quoteDocumentReply      = "Gracias por toda la información. Para preparar tu cotización necesitamos revisar tu avance, ¿podrías compartirnos el archivo en PDF o Word?"
	documentReceivedPrefix  = "¡Recibimos tu documento! Para completar tu evaluación, "
	documentReceivedQuoting = "¡Gracias! Recibimos tu documento. Lo compartiremos con el área académica para que revise tu avance y te enviaremos la cotización a la brevedad."
)

// Prompts groups the instruction texts the responder sends to the model.
type Prompts struct {
	System      string
	Educational string
	OneOff      string
}

// DefaultPrompts returns the built-in instructions.
func DefaultPrompts() Prompts {
	return Prompts{System: defaultSystemPrompt, Educational: educationalInstruction, OneOff: oneOffInstruction}
}

// LoadPrompts returns the defaults with the system prompt replaced by the
// contents of path when path is set.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if strings.TrimSpace(path) == "" {
		return prompts, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("conversation: read system prompt: %w", err)
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		prompts.System = text
	}
	return prompts, nil
}
