// Package dto defines the request and response shapes of the HTTP surface.
package dto

import "github.com/mnemon-dev/mnemon/pkg/types"

// TurnRequest commits one completed exchange.
type TurnRequest struct {
	Tenant    string `json:"tenant"`
	UserInput string `json:"user_input" binding:"required"`
	Response  string `json:"response" binding:"required"`
}

// TurnResponse reports what the turn stored.
type TurnResponse struct {
	UserMessageID string          `json:"user_message_id,omitempty"`
	AIMessageID   string          `json:"ai_message_id,omitempty"`
	Facts         *types.Triplets `json:"facts"`
	Dropped       []string        `json:"dropped,omitempty"`
	StorageError  string          `json:"storage_error,omitempty"`
}

// RecallRequest asks for memory context for a new user input.
type RecallRequest struct {
	Tenant string `json:"tenant"`
	Text   string `json:"text" binding:"required"`
}

// RecallResponse is the assembled memory context.
type RecallResponse struct {
	Activated *types.Triplets     `json:"activated"`
	Expanded  *types.Triplets     `json:"expanded"`
	Messages  []*types.SystemNode `json:"messages,omitempty"`
	Scenes    []*types.SystemNode `json:"scenes,omitempty"`
	Topics    []*types.SystemNode `json:"topics,omitempty"`
}

// FactsRequest feeds raw subject-predicate-object facts to ingestion.
type FactsRequest struct {
	Tenant string       `json:"tenant"`
	Facts  []types.Fact `json:"facts" binding:"required"`
}

// IntegrateRequest merges node B into node A.
type IntegrateRequest struct {
	Tenant string `json:"tenant"`
	A      NodeRef `json:"a" binding:"required"`
	B      NodeRef `json:"b" binding:"required"`
	// Delete removes B after a successful merge.
	Delete bool `json:"delete,omitempty"`
}

// NodeRef identifies a node by its primary key.
type NodeRef struct {
	Label string `json:"label" binding:"required"`
	Name  string `json:"name" binding:"required"`
}

// TopicRequest records a conversation topic.
type TopicRequest struct {
	Tenant  string `json:"tenant"`
	Content string `json:"content" binding:"required"`
}

// DocumentRequest stores a document for vector recall.
type DocumentRequest struct {
	Tenant  string              `json:"tenant"`
	Content string              `json:"content" binding:"required"`
	Props   map[string][]string `json:"props,omitempty"`
}

// SceneRequest closes the tenant's current scene.
type SceneRequest struct {
	Tenant string `json:"tenant"`
}

// ErrorResponse carries an error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
