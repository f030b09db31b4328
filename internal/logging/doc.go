// Package logging wraps Zap with context-aware helpers for pasokhd.
//
// Every pipeline stage logs through a *Logger so that request and
// conversation identifiers travel with the log record. Correlation
// fields are read from the context at call time; handlers attach them
// with WithRequestID and WithConversationID.
package logging
