// Package testutil contains internal test helpers: a scripted fake engine
// adapter for exercising the agentic path without a live model backend.
package testutil
