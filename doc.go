// Package mnemon is a property-graph long-term memory engine for AI
// companion chat backends.
//
// Every tenant gets its own graph: semantic entities (Person, Place, and
// whatever labels extraction discovers) connected by typed relationships,
// woven into a temporal skeleton of Scene and Message nodes that records
// when each fact was learned. Entity writes merge, never overwrite, so a
// node accumulates knowledge across conversations. Recall combines graph
// traversal from mentioned entities, vector similarity over past messages
// and topics, and a bounded short-term window of recent turns.
//
// The Engine type is the entry point:
//
//	engine, err := mnemon.NewEngine(cfg)
//	recall, err := engine.Recall(ctx, tenant, userInput)
//	// ... generate a response from recall ...
//	result, err := engine.CommitTurn(ctx, mnemon.TurnRequest{
//		Tenant:    tenant,
//		UserInput: userInput,
//		Response:  response,
//	})
//
// Storage is best-effort relative to the chat: a turn whose fact writes
// fail still delivers its response, and the failure is reported on the
// result instead of aborting the exchange.
package mnemon
