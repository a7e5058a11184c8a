package orchestrator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/shutter-network/SealedBidRFP/storage/ledger"
)

// BidView is one bid as presented to the user. Content is the plaintext
// once revealed, the hex ciphertext before.
type BidView struct {
	Index    uint64 `json:"index"`
	Bidder   string `json:"bidder"`
	Revealed bool   `json:"revealed"`
	Content  string `json:"content"`
}

// RFPView is one RFP with its derived status and bids.
type RFPView struct {
	ID                 uint64    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	SubmissionDeadline uint64    `json:"submission_deadline"`
	RevealDeadline     uint64    `json:"reveal_deadline"`
	OrganizationID     uint64    `json:"organization_id"`
	Status             Status    `json:"status"`
	BidCount           uint64    `json:"bid_count"`
	Bids               []BidView `json:"bids"`
}

// OrganizationView is one organization as presented to the user.
type OrganizationView struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// ListRequest parameterizes the List workflow. With an organization
// filter the walk covers that organization's RFPs, otherwise all RFPs.
type ListRequest struct {
	// Refresh resets the session cursor to the newest RFP.
	Refresh bool
	// OrganizationID restricts the listing to one organization.
	OrganizationID *uint64
}

// Listing is one page of RFPs, newest first.
type Listing struct {
	Organization *OrganizationView `json:"organization,omitempty"`
	RFPs         []RFPView         `json:"rfps"`
	// HasMore reports whether another page is available.
	HasMore bool `json:"has_more"`
}

// List fetches the next page of the descending RFP walk, or the first
// page again on refresh. The pagination cursor is session state and
// persists across calls.
func (o *Orchestrator) List(ctx context.Context, req ListRequest) (*Listing, error) {
	listing := &Listing{RFPs: []RFPView{}}

	// Resolve the id universe for the walk, newest last.
	var ids []uint64
	if req.OrganizationID != nil {
		org, err := o.ledger.GetOrganization(ctx, *req.OrganizationID)
		if err != nil {
			return nil, o.fail(fmt.Errorf("fetching organization %d: %w", *req.OrganizationID, err))
		}
		ids = org.RFPIDs
		listing.Organization = &OrganizationView{ID: org.ID, Name: org.Name}
	} else {
		count, err := o.ledger.RFPCount(ctx)
		if err != nil {
			return nil, o.fail(fmt.Errorf("fetching RFP count: %w", err))
		}
		ids = make([]uint64, count)
		for i := uint64(0); i < count; i++ {
			ids[i] = i
		}
	}
	total := uint64(len(ids))

	o.mu.Lock()
	if req.Refresh {
		o.cursor = 0
	}
	offset := o.cursor
	o.mu.Unlock()

	if offset >= total {
		return listing, nil
	}

	// Descending window over the newest unseen ids.
	start := total - 1 - offset
	served := offset
	for i := start; ; i-- {
		view, err := o.fetchRFPView(ctx, ids[i])
		if err != nil {
			return nil, o.fail(err)
		}
		listing.RFPs = append(listing.RFPs, *view)
		served++
		if i == 0 || served-offset >= o.batch {
			break
		}
	}
	listing.HasMore = served < total

	o.mu.Lock()
	o.cursor = offset + o.batch
	o.mu.Unlock()

	return listing, nil
}

// RFPDetail fetches a single RFP with its bids and derived status.
func (o *Orchestrator) RFPDetail(ctx context.Context, rfpID uint64) (*RFPView, error) {
	view, err := o.fetchRFPView(ctx, rfpID)
	if err != nil {
		return nil, o.fail(err)
	}
	return view, nil
}

func (o *Orchestrator) fetchRFPView(ctx context.Context, rfpID uint64) (*RFPView, error) {
	rfp, err := o.ledger.GetRFP(ctx, rfpID)
	if err != nil {
		return nil, fmt.Errorf("fetching RFP %d: %w", rfpID, err)
	}

	view := &RFPView{
		ID:                 rfp.ID,
		Title:              rfp.Title,
		Description:        rfp.Description,
		SubmissionDeadline: rfp.SubmissionDeadline,
		RevealDeadline:     rfp.RevealDeadline,
		OrganizationID:     rfp.OrganizationID,
		BidCount:           rfp.BidCount,
		Bids:               make([]BidView, 0, rfp.BidCount),
	}

	bids := make([]*ledger.Bid, 0, rfp.BidCount)
	for index := uint64(0); index < rfp.BidCount; index++ {
		bid, err := o.ledger.GetBid(ctx, rfpID, index)
		if err != nil {
			return nil, fmt.Errorf("fetching bid %d of RFP %d: %w", index, rfpID, err)
		}
		bids = append(bids, bid)

		content := bid.PlaintextBid
		if !bid.Revealed && bid.HasCiphertext() {
			content = hexutil.Encode(bid.EncryptedBid)
		}
		view.Bids = append(view.Bids, BidView{
			Index:    index,
			Bidder:   bid.Bidder.Hex(),
			Revealed: bid.Revealed,
			Content:  content,
		})
	}

	view.Status = DeriveStatus(uint64(o.clock().Unix()), rfp, bids)
	return view, nil
}
