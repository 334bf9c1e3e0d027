// Package segment keeps dynamic marketing lists in sync with their criteria.
//
// Each poll takes one snapshot of contacts and custom fields, evaluates
// every active dynamic list against it, and writes only the membership
// difference. A list whose membership did not change is not written at all,
// so back-to-back polls over unchanged data are no-ops.
package segment
