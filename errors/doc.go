// Package errors defines the error taxonomy shared by the protocol adapters,
// the token store and the lifecycle coordinator.
//
// Every failure surfaces as an *AppError carrying a kind (Code), a human
// message, whether a retry may help, and diagnostic details such as the
// upstream status and response body. Adapters and the store enrich and
// propagate errors; they never swallow them.
package errors
