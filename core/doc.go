// Package core contains the shared data model for agentswarm: conversation
// messages, tool calls, completions and their streamed chunks, the chunk
// combination algorithm, token usage accounting, and the per-run context
// threaded through every processor and turn loop.
//
// Types in this package are provider agnostic. Concrete model bindings
// (llm/openai, llm/anthropic) convert vendor responses into these structures
// so the rest of the framework never branches on a provider.
package core
