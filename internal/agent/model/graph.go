package model

// TurnInput is the input of the turn pipeline graph.
type TurnInput struct {
	AgentType string
	Category  string
	Message   string
	// Context is a read-only snapshot; graph nodes must not mutate it.
	Context *ConversationContext
}

// TurnOutput is what the turn pipeline hands back to the orchestrator.
type TurnOutput struct {
	Response  *ValidatedResponse
	Knowledge []KnowledgeResult
	Usage     *UsageCost
}

// TurnState stores per-invocation state for the turn pipeline graph.
// Concurrency model:
//   - Registered as Graph Local State via compose.WithGenLocalState.
//   - Read and written only inside state handlers or compose.ProcessState,
//     which eino serializes.
type TurnState struct {
	Input     TurnInput
	Knowledge []KnowledgeResult
	Prompt    string
	Usage     *UsageCost
}
