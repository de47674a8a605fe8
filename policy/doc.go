// Package policy implements the agent turn-loop engine: given a memory and an
// optional tool set, the Executor drives repeated LLM generations and tool
// invocations until a termination condition holds. Both a blocking variant
// (Execute) and a streaming variant (ExecuteStream) are provided.
package policy
