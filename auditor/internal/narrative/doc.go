// Package narrative writes chef-facing feedback for escalated waste events.
//
// ChefPrompt turns an evaluated event into a Prompt carrying the system
// instructions, the fact block and a deterministic offline body. LLM sends
// the prompt to an OpenAI-compatible chat completions endpoint (Groq by
// default); Static returns the offline body. Generated text is opaque to
// the caller and stored as-is.
package narrative
