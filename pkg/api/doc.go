// Package api defines the public types of the durable workflow engine: runs,
// history events, the workflow and activity function contracts, retry
// policies, the error taxonomy, and the Observer hooks used for logging and
// metrics.
//
// The engine implementation lives in internal/engine; applications normally
// import the root durable package, which re-exports everything here.
package api
