// Package health checks the services a chat turn depends on: the model
// endpoint and the memory service. Checks run concurrently and are folded into
// a single healthy or unhealthy [Report].
package health
