// Package domain defines the core business types for the CRM marketing
// automation subsystem.
//
// Types in this package are pure value objects with no behavior beyond
// small helpers, no database dependencies, and no HTTP concerns. They are
// the shared language between the rule engines, the campaign scheduler, and
// the repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Rule criteria are stored as raw JSON; parsing belongs to the consumer
//     because each consumer has its own policy for malformed input
//   - Constants and enums belong here
package domain
