// Package api exposes the growth analytics engine over HTTP. Routes live
// under /api/v1 and return JSON envelopes from pkg/httputil; the full
// middleware chain (request IDs, logging, recovery, CORS, metrics) is
// assembled in NewServer.
package api
