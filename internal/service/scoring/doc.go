// Package scoring applies lead scoring rules when a trigger event fires for
// a contact.
//
// Condition fields prefixed "Contact." are read from the contact record;
// every other field is a dot path into the event payload. Points from all
// matching rules are summed and added in one write. Re-firing the same
// trigger re-applies the points: there is no deduplication.
package scoring
