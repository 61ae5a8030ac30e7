// Package gateway is the HTTP client for the chat gateway that fronts courier.
// One Client satisfies dispatch.MessageDelivery, dispatch.Skills,
// dispatch.Actions and dispatch.ConversationStore.
//
// Endpoints, relative to base_url:
//
//	GET  /channels/{channel}/messages/{id}     fetch a message
//	POST /channels/{channel}/messages          send or reply ({"content", "reply_to"})
//	GET  /channels/{channel}/history?limit=N   recent turns, oldest first
//	POST /skills/invoke                        run a skill intent
//	POST /actions/execute                      run a scheduled action
//
// Requests carry "Authorization: Bearer <token>" when a token is configured
// and retry through the shared httpx policy.
package gateway
