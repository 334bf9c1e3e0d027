// Package campaign drives marketing campaigns through their lifecycle and
// walks drip recipients through their step sequence.
//
// ProcessActiveCampaigns is called on every poll. It starts scheduled
// campaigns that are due, enrolls their target lists, executes due drip
// steps in bounded batches, and completes drip campaigns that have no
// active recipients left. State changes for one batch are committed
// together, so a crash mid-batch re-sends at most that batch.
//
// Delivery is fire-and-forget: a failed send is logged against the step and
// the recipient still advances.
package campaign
