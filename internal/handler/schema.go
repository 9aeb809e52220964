package handler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"

	"github.com/xeipuuv/gojsonschema"
)

// agentRequestSchema is the contract of POST /v1/sector-agent.
const agentRequestSchema = `{
  "type": "object",
  "required": ["messages"],
  "properties": {
    "sector": {"type": "string"},
    "provider": {"type": "string"},
    "messages": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["role", "content"],
        "properties": {
          "role": {"type": "string", "enum": ["user", "assistant", "system"]},
          "content": {"type": "string"}
        }
      }
    }
  }
}`

var agentSchema = gojsonschema.NewStringLoader(agentRequestSchema)

// decodeAgentRequest validates body against the schema and decodes it.
func decodeAgentRequest(body []byte) (domain.AgentRequest, error) {
	var req domain.AgentRequest

	result, err := gojsonschema.Validate(agentSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return req, &domain.ErrValidation{Field: "body", Message: "invalid JSON"}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return req, &domain.ErrValidation{Field: "body", Message: strings.Join(msgs, "; ")}
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return req, &domain.ErrValidation{Field: "body", Message: fmt.Sprintf("decode: %v", err)}
	}
	return req, nil
}
