// Package engine implements the generate-validate-retry loop and the
// generate-and-execute orchestration.
//
// A Generator drives a bounded number of attempts against an injected
// provider.Provider, cleans each reply with package sanitize and checks
// it with a validate.Validator, returning the first candidate that
// parses. A Runner composes a Generator with a sandbox.Executor and an
// optional storage.HistoryStore.
//
// Neither type panics or returns Go errors from its public operations.
// Failures are encoded in the result values: an empty Code in
// api.GenerationResult, and api.MessageNoCode in api.RunResult.Error.
package engine
