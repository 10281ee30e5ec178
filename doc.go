// Package apns implements a provider client for Apple's legacy binary
// push gateway and its companion feedback service.
//
// The gateway's wire protocol is asymmetric: the provider streams
// notifications without per-message acknowledgement, and the gateway
// only ever reports a failure by writing a single 6-byte error-response
// frame and closing the TLS session. Any notification written after the
// one that failed is lost and must be identified and resent by the
// provider. GatewayClient keeps a bounded history of everything it has
// written so that an ErrorReader, running on the same TLS session, can
// truncate and replay that history when an error-response arrives.
//
// Construct a Payload, wrap one or more into a Frame (or call
// GatewayClient.Send for a single notification), and hand it to a
// GatewayClient. Use FeedbackClient to drain the separate feedback
// service for tokens that have stopped being reachable.
package apns
