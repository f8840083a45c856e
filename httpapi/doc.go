// Package httpapi mounts storeauth operations on a chi router under /api/v1,
// plus /healthz and /metrics.
package httpapi
