package provider

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

// ConvertToEinoTools converts declared call tools to Eino tool infos.
func ConvertToEinoTools(tools []types.Tool) []*schema.ToolInfo {
	result := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		var params map[string]*schema.ParameterInfo
		if len(t.InputSchema) > 0 {
			params = parseJSONSchemaToParams(t.InputSchema)
		}

		result[i] = &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		}
	}
	return result
}

// jsonSchema is the subset of JSON Schema mapped onto Eino parameters.
type jsonSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Enum        []string               `json:"enum"`
	Properties  map[string]*jsonSchema `json:"properties"`
	Items       *jsonSchema            `json:"items"`
	Required    []string               `json:"required"`
}

// parseJSONSchemaToParams converts an object schema to Eino parameters.
// Unparseable schemas yield no parameters.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var s jsonSchema
	if err := json.Unmarshal(schemaJSON, &s); err != nil {
		return nil
	}
	return objectParams(&s)
}

func objectParams(s *jsonSchema) map[string]*schema.ParameterInfo {
	if len(s.Properties) == 0 {
		return nil
	}
	required := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		required[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(s.Properties))
	for name, prop := range s.Properties {
		if prop == nil {
			continue
		}
		info := paramInfo(prop)
		info.Required = required[name]
		params[name] = info
	}
	return params
}

func paramInfo(s *jsonSchema) *schema.ParameterInfo {
	info := &schema.ParameterInfo{
		Type: paramType(s.Type),
		Desc: s.Description,
		Enum: s.Enum,
	}
	switch info.Type {
	case schema.Object:
		info.SubParams = objectParams(s)
	case schema.Array:
		if s.Items != nil {
			info.ElemInfo = paramInfo(s.Items)
		}
	}
	return info
}

func paramType(t string) schema.DataType {
	switch t {
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	case "null":
		return schema.Null
	default:
		return schema.String
	}
}
