// Package entities provides the core domain types of the tool host:
// versions and their compatibility rule, tool listings, and host configuration.
package entities
