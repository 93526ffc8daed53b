// Package buffer turns host-provided data into an owned byte buffer that can
// be handed to the engine's ingestion call.
//
// The returned slice never aliases the source: callers may reuse or mutate
// their input as soon as ToOwned returns.
package buffer
