// Package parsers turns raw model output into a ValidatedResponse. It is the
// only place untrusted model text is interpreted; malformed shapes are
// rejected, never coerced.
package parsers

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"

	"github.com/chative-core/agentbuilder/internal/agent/model"
	errx "github.com/chative-core/agentbuilder/internal/core/error"
	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Response contract field names, in validation order.
const (
	FieldResponse            = "response"
	FieldActions             = "actions"
	FieldRequiredInformation = "required_information"
	FieldNextState           = "next_state"
	FieldConfidence          = "confidence"
)

// ContractFields lists the response contract fields in the order they are
// checked.
var ContractFields = []string{
	FieldResponse,
	FieldActions,
	FieldRequiredInformation,
	FieldNextState,
	FieldConfidence,
}

const (
	maxContentLen = 128 * 1024 // 128KB
	maxErrSnippet = 200
)

// ParseResponse validates raw against the response contract.
//
// Error kinds:
//   - errx.ErrResponseParse: raw is not a JSON object
//   - errx.ErrResponseContract: the first missing or mis-typed field, see errx.FieldOf
func ParseResponse(raw string) (resp *model.ValidatedResponse, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "response_parser").Msgf("panic recovered: %v", r)
			err = errx.WithKind(errx.ErrResponseParse, fmt.Errorf("response parser panic: %v", r))
			resp = nil
		}
	}()

	// content length guard
	if len(raw) > maxContentLen {
		logx.Warn().
			Str("component", "response_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(raw)).
			Msg("response rejected due to size limit")
		return nil, errx.WithKind(errx.ErrResponseParse, fmt.Errorf("response exceeds %d bytes", maxContentLen))
	}
	if !utf8.ValidString(raw) {
		return nil, errx.WithKind(errx.ErrResponseParse, errors.New("response is not valid utf8"))
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errx.WithKind(errx.ErrResponseParse, errors.New("empty response"))
	}

	var doc any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		logx.Debug().Str("component", "response_parser").Str("snippet", snippet(trimmed)).Msg("response is not valid json")
		return nil, errx.WithKind(errx.ErrResponseParse, fmt.Errorf("decode response: %w", err))
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, errx.WithKind(errx.ErrResponseParse, fmt.Errorf("response must be a JSON object, got %s", typeName(doc)))
	}

	resp = &model.ValidatedResponse{}

	// response
	v, err := lookupField(obj, FieldResponse)
	if err != nil {
		return nil, err
	}
	if resp.Response, ok = v.(string); !ok {
		return nil, mistyped(FieldResponse, "string", v)
	}

	// actions
	if v, err = lookupField(obj, FieldActions); err != nil {
		return nil, err
	}
	rawActions, ok := v.([]any)
	if !ok {
		return nil, mistyped(FieldActions, "array", v)
	}
	if resp.Actions, err = parseActions(rawActions); err != nil {
		return nil, err
	}

	// required_information
	if v, err = lookupField(obj, FieldRequiredInformation); err != nil {
		return nil, err
	}
	rawInfo, ok := v.([]any)
	if !ok {
		return nil, mistyped(FieldRequiredInformation, "array of strings", v)
	}
	resp.RequiredInformation = make([]string, 0, len(rawInfo))
	for i, item := range rawInfo {
		s, ok := item.(string)
		if !ok {
			return nil, mistyped(fmt.Sprintf("%s[%d]", FieldRequiredInformation, i), "string", item)
		}
		resp.RequiredInformation = append(resp.RequiredInformation, s)
	}

	// next_state
	if v, err = lookupField(obj, FieldNextState); err != nil {
		return nil, err
	}
	if resp.NextState, ok = v.(string); !ok {
		return nil, mistyped(FieldNextState, "string", v)
	}

	// confidence
	if v, err = lookupField(obj, FieldConfidence); err != nil {
		return nil, err
	}
	if resp.Confidence, ok = v.(float64); !ok {
		return nil, mistyped(FieldConfidence, "number", v)
	}

	return resp, nil
}

func parseActions(items []any) ([]model.ActionCall, error) {
	out := make([]model.ActionCall, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("%s[%d]", FieldActions, i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, mistyped(path, "object", item)
		}

		nameVal, ok := obj["name"]
		if !ok {
			return nil, errx.Field(errx.ErrResponseContract, path+".name", "missing")
		}
		name, ok := nameVal.(string)
		if !ok || name == "" {
			return nil, mistyped(path+".name", "non-empty string", nameVal)
		}

		params := map[string]any{}
		if p, present := obj["parameters"]; present && p != nil {
			m, ok := p.(map[string]any)
			if !ok {
				return nil, mistyped(path+".parameters", "object", p)
			}
			params = m
		}
		out = append(out, model.ActionCall{Name: name, Parameters: params})
	}
	return out, nil
}

func lookupField(obj map[string]any, field string) (any, error) {
	v, ok := obj[field]
	if !ok {
		return nil, errx.Field(errx.ErrResponseContract, field, "missing")
	}
	return v, nil
}

func mistyped(field, want string, got any) error {
	return errx.Field(errx.ErrResponseContract, field, fmt.Sprintf("expected %s, got %s", want, typeName(got)))
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func snippet(s string) string {
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet] + "..."
}
