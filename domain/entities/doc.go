// Package entities provides the core domain types of the plugin host:
// capabilities, lifecycle states and phases, manifest-derived configuration
// and discovery records.
package entities
