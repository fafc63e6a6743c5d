// Package httpserver is the request gateway: a thin HTTP layer over the
// streaming relay core.
//
// POST /ask accepts {query, uuid?} and answers with a text/event-stream
// response, one frame per token and a final terminal frame, or with an error
// status before any streaming starts. GET /v1/healthz reports broker
// connectivity.
package httpserver
