// Package llm provides message routers backed by LLM providers.
//
// The factory creates routers based on provider configuration.
// Currently supports:
//   - Anthropic Claude
package llm
