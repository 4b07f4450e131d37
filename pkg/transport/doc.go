// Package transport implements the JSON-RPC 2.0 layer of aython.
//
// A Handler answers one decoded call. Router dispatches calls by method
// name, and Middleware wraps handlers with cross-cutting behavior such as
// panic recovery, request IDs, logging and cancellation of in-flight
// calls. Protocol adapters (transport/http) decode requests and batches,
// run them through a handler and encode the replies.
//
// Method handlers return plain Go values and errors. Dispatch turns an
// error into a JSON-RPC error object: *Error values pass through
// unchanged, *api.APIError values are mapped by type, and anything else
// becomes an internal error.
package transport
