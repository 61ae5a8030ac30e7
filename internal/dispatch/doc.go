// Package dispatch routes claimed queue items to the handler for their task
// type and reports a Result the orchestrator turns into Complete or Fail.
//
// Handlers talk to the outside world only through the collaborator interfaces
// declared in collaborators.go. Concrete implementations live under
// internal/services (gateway, llm, gemini). Process never panics and never
// returns an error: every failure, including a handler panic or a timeout, is
// folded into Result.Success=false.
package dispatch
