package pipeline

import "strings"

// Prompt text is treated as an opaque template, same as the vendor SDK
// behind LanguageModel — only its JSON contract matters to the stages that
// parse a reply.
const (
	classificationSystemPrompt = `Classify the restaurant search query. Reply with JSON only: ` +
		`{"foodSignal":"NO|UNCERTAIN|YES","language":"<bcp47>","route":"CONTINUE|ASK_CLARIFY|STOP","confidence":0.0}`

	intentRoutingSystemPrompt = `Pick a provider route for the query. Reply with JSON only: ` +
		`{"route":"TEXTSEARCH|NEARBY|LANDMARK","cityHint":"","landmarkText":"","radiusMeters":0,` +
		`"reason":"","routeConf":0.0,"cityConf":0.0,"landmarkConf":0.0}`
)

// extractJSON strips a ```json fenced block if the model wrapped its reply
// in one; otherwise returns the text unchanged.
func extractJSON(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
