package shared

import (
	"time"
)

// AgentKind names the external agent a proposal or analysis is requested from.
type AgentKind string

const (
	AgentNutrition AgentKind = "nutrition"
	AgentFitness   AgentKind = "fitness"
	AgentChat      AgentKind = "chat"
)

// ParseAgentKind maps a client supplied agent name to an AgentKind.
// An empty name selects the chat agent.
func ParseAgentKind(s string) (AgentKind, bool) {
	switch AgentKind(s) {
	case "", AgentChat:
		return AgentChat, true
	case AgentNutrition:
		return AgentNutrition, true
	case AgentFitness:
		return AgentFitness, true
	}
	return "", false
}

// TokenUsage tracks the tokens consumed by a request.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// AgentMeta holds operational metadata for an agent execution.
type AgentMeta struct {
	AgentName string
	Usage     TokenUsage
	Latency   time.Duration
}
