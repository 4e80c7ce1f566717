// Package notifier turns new posts into chat messages.
//
// A notification is a short Markdown message with the post title and a link,
// delivered once to a fixed chat through a transport.Adapter (Telegram in
// production). There is no queue and no retry: delivery is at-most-once, and a
// failure is returned to the caller to be logged.
//
// # History
//
// For diagnostics the service keeps a small in-memory history of recently
// delivered messages.
package notifier
