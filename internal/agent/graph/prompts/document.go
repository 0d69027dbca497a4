package prompts

import (
	"fmt"

	"github.com/chative-core/agentbuilder/internal/agent/model"
)

// ResponseFormat describes the response contract to the model.
type ResponseFormat struct {
	Response            string `json:"response"`
	Actions             string `json:"actions"`
	RequiredInformation string `json:"required_information"`
	NextState           string `json:"next_state"`
	Confidence          string `json:"confidence"`
}

var DefaultResponseFormat = ResponseFormat{
	Response:            "string - your response to the user",
	Actions:             "array of action objects with name and parameters",
	RequiredInformation: "array of required information fields",
	NextState:           "string - the next conversation state",
	Confidence:          "float - confidence score for the response",
}

type DocumentContext struct {
	CurrentState         string               `json:"current_state"`
	CollectedInformation map[string]any       `json:"collected_information"`
	MissingInformation   []string             `json:"missing_information"`
	ConversationHistory  []model.HistoryEntry `json:"conversation_history"`
}

// Document is the structured prompt for one turn.
type Document struct {
	System           string                  `json:"system"`
	Context          DocumentContext         `json:"context"`
	Knowledge        []model.KnowledgeResult `json:"knowledge"`
	UserMessage      string                  `json:"user_message"`
	ResponseFormat   ResponseFormat          `json:"response_format"`
	AvailableActions []model.ActionSchema    `json:"available_actions,omitempty"`
	StateSpecific    string                  `json:"state_specific,omitempty"`
}

// Render serializes the document as indented JSON.
func (d *Document) Render() (string, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render prompt document: %w", err)
	}
	return string(b), nil
}
