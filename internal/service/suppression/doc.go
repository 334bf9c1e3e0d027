// Package suppression implements the global do-not-contact list.
//
// Campaign enrollment consults it once per campaign start; a contact whose
// email is listed never becomes a recipient. Later steps do not re-check.
//
// Emails are normalized (trimmed, lower-cased) on every path in and out, so
// callers may pass addresses as they appear on contact records.
package suppression
