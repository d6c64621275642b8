// Package component defines the lifecycle contract shared by streamkit's
// long-lived parts and a Registry that starts them in order, stops them in
// reverse and aggregates their health.
package component
