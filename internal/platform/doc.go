// Package platform wraps the remote broadcast platform's REST API.
//
// The Client interface covers stream provisioning, broadcast scheduling,
// lifecycle transitions, metadata patches, and playlist management. The HTTP
// implementation tags every failure with a services error marker so callers
// can distinguish retryable faults from credential, quota, and state errors.
// A redundant lifecycle transition is reported with the conflict marker and
// is safe to treat as already done.
package platform
