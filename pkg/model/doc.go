// Package model defines the application and platform graph models, the
// error taxonomy shared by every layer, and the pure referential-integrity
// checks consulted before a mutation is committed.
//
// Acyclicity of the message graph is not checked here; cycle detection
// belongs to the external validation service.
package model
