// Package entity holds the resources exposed by the management API.
// Identifiers are opaque strings assigned by the server, rule categories are identified by a number.
package entity
