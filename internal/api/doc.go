// Package api provides the REST API server fronting the merge engine:
// multipart upload of backup archives in, a merged archive or a
// validation report out.
//
// Implements HTTP using the Gin framework with a standard response
// envelope, optional CORS, and optional API key authentication.
package api
