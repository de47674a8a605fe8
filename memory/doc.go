// Package memory contains the agent memory contract and its default
// conversation-backed implementation. Agents read and append messages through
// the Memory interface; AgentMemory is the concrete store used by LLM agents
// and supports deep cloning for forgetful (per-run isolated) execution.
package memory
