package model

// ActionCall is an action the model asked to run.
type ActionCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// ValidatedResponse is model output that passed the response contract.
type ValidatedResponse struct {
	Response            string       `json:"response"`
	Actions             []ActionCall `json:"actions"`
	RequiredInformation []string     `json:"required_information"`
	NextState           string       `json:"next_state"`
	Confidence          float64      `json:"confidence"`
}

// ActionParameter describes one parameter of a registered action.
type ActionParameter struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// ActionSchema is the outward description of a registered action.
type ActionSchema struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	RequiredParameters map[string]string `json:"required_parameters"`
	Parameters         []ActionParameter `json:"-"`
}
