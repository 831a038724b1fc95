package toolconv

import (
	"encoding/json"

	"github.com/haasonsaas/concierge/internal/agent"
	openai "github.com/sashabaranov/go-openai"
)

// ToOpenAITools converts tool specs to OpenAI function definitions.
// A spec whose schema does not parse is offered with an empty object schema.
func ToOpenAITools(specs []agent.ToolSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(specs))
	for i, spec := range specs {
		var params map[string]any
		if err := json.Unmarshal(schemaOrDefault(spec.Schema), &params); err != nil || params == nil {
			params = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}

		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		}
	}
	return result
}
