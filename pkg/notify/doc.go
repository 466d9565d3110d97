// Package notify delivers failure and timeout notifications over SMTP
// mail and chat webhooks. The Router fans a single notification request
// out to the configured transports.
package notify
