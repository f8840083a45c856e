// Package mailer delivers storeauth action-token links. SMTP sends real
// mail through go-mail; Log writes links to a zap logger for development.
package mailer
