// Package models defines the wire types exchanged with the Agent Memory
// System API.
package models

import "encoding/json"

// Actor identifies who produced an event.
type Actor struct {
	Type string `json:"type"` // "human" or "agent"
	ID   string `json:"id"`
}

// Event is a memory event to record.
type Event struct {
	SessionID   string          `json:"session_id"`
	Channel     string          `json:"channel"`
	Actor       Actor           `json:"actor"`
	Kind        string          `json:"kind"`
	Content     json.RawMessage `json:"content"`
	Sensitivity string          `json:"sensitivity"`
	Tags        []string        `json:"tags"`
}

// EventReceipt is the server's acknowledgement of a recorded event.
type EventReceipt struct {
	EventID  string   `json:"event_id"`
	ChunkIDs []string `json:"chunk_ids"`
}

// ACBRequest describes the Active Context Bundle to build.
type ACBRequest struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Channel   string `json:"channel"`
	Intent    string `json:"intent"`
	QueryText string `json:"query_text,omitempty"`
}

// ACBSection is one named section of a bundle.
type ACBSection struct {
	Name    string          `json:"name"`
	Content json.RawMessage `json:"content,omitempty"`
}

// ACB is a server-computed Active Context Bundle.
type ACB struct {
	Sections     []ACBSection `json:"sections"`
	TokenUsedEst int          `json:"token_used_est"`
	BudgetTokens int          `json:"budget_tokens"`
}

// Session is an authentication session as reported by the server.
type Session struct {
	SessionID string `json:"session_id"`
	IsActive  bool   `json:"is_active"`
}

// User is the profile returned by a successful login.
type User struct {
	Username string `json:"username"`
}
