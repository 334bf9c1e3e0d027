// Package assignment routes new leads to owners.
//
// Active rules are tried in ascending priority; the first rule whose
// criteria match the contact picks an owner with its strategy. No match
// leaves the contact unassigned.
//
// The round-robin cursor lives on the rule row. When a lock factory is
// configured, cursor advances are serialized per rule; without one,
// concurrent callers can hand two leads to the same user.
package assignment
