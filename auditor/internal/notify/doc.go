// Package notify delivers escalation notifications for waste events.
//
// compose.go builds the chef email from stored feedback text. Senders:
// SMTP (plain-text email, implicit TLS on 465 or STARTTLS), Webhook (Slack,
// Teams or generic JSON), AMQP (persistent JSON on a fanout exchange) and
// Telegram (bot message to a management chat). Multi fans out to all of
// them; Dispatcher turns any Sender into a fire-and-forget queue with
// drop-oldest overflow.
package notify
