package orchestrator

import "github.com/shutter-network/SealedBidRFP/storage/ledger"

// Status is the presentational state of an RFP, derived from the wall
// clock and the ledger record. It is never stored.
type Status string

const (
	// StatusOpenForSubmission means bids are still accepted.
	StatusOpenForSubmission Status = "open for submission"
	// StatusRevealAvailable means submissions are closed. This state also
	// covers RFPs past their reveal deadline with unrevealed bids, and
	// RFPs with no bids at all, which never finalize.
	StatusRevealAvailable Status = "reveal available"
	// StatusFinalizedRevealed is terminal: past the reveal deadline with
	// at least one bid, all revealed.
	StatusFinalizedRevealed Status = "finalized/revealed"
)

// DeriveStatus derives the presentational status of an RFP. bids must be
// the RFP's full bid list; it is only inspected past the reveal deadline.
func DeriveStatus(nowUnix uint64, rfp *ledger.RFP, bids []*ledger.Bid) Status {
	// The submission boundary is exclusive: a bid at the deadline second
	// is late.
	if nowUnix < rfp.SubmissionDeadline {
		return StatusOpenForSubmission
	}
	if nowUnix < rfp.RevealDeadline {
		return StatusRevealAvailable
	}
	if rfp.BidCount == 0 {
		// Nothing to reveal; the RFP stays reveal-available forever.
		return StatusRevealAvailable
	}
	for _, bid := range bids {
		if !bid.Revealed {
			return StatusRevealAvailable
		}
	}
	return StatusFinalizedRevealed
}
