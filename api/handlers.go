package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/shutter-network/SealedBidRFP/orchestrator"
)

var validate = validator.New()

// Status is the API response for GetStatus.
type Status struct {
	LatestStatus string `json:"latest_status"`
}

// GetStatus gets the most recent workflow status line.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, Status{LatestStatus: h.status.Last()})
}

// CreateRFPRequest is the request body for CreateRFP. Deadlines are UNIX
// seconds.
type CreateRFPRequest struct {
	Title              string `json:"title" validate:"required"`
	Description        string `json:"description" validate:"required"`
	SubmissionDeadline uint64 `json:"submission_deadline" validate:"required"`
	RevealDeadline     uint64 `json:"reveal_deadline" validate:"required"`
	OrganizationID     uint64 `json:"organization_id"`
}

// CreatedResponse reports the id assigned to a newly created item.
type CreatedResponse struct {
	ID uint64 `json:"id"`
}

// CreateRFP creates a new RFP with a fresh timelock identity.
func (h *Handler) CreateRFP(w http.ResponseWriter, r *http.Request) {
	var req CreateRFPRequest
	if err := decodeBody(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	id, err := h.workflows.Create(r.Context(), orchestrator.CreateRequest{
		Title:              req.Title,
		Description:        req.Description,
		SubmissionDeadline: req.SubmissionDeadline,
		RevealDeadline:     req.RevealDeadline,
		OrganizationID:     req.OrganizationID,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreatedResponse{ID: id})
}

// ListRFPs serves one page of the descending RFP listing. The refresh
// query parameter restarts the walk from the newest RFP; the org query
// parameter restricts it to one organization.
func (h *Handler) ListRFPs(w http.ResponseWriter, r *http.Request) {
	req := orchestrator.ListRequest{
		Refresh: r.URL.Query().Get("refresh") == "true",
	}
	if raw := r.URL.Query().Get("org"); raw != "" {
		orgID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			renderError(w, r, fmt.Errorf("%w: malformed org id %q", ErrBadRequest, raw))
			return
		}
		req.OrganizationID = &orgID
	}

	listing, err := h.workflows.List(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, listing)
}

// GetRFP serves a single RFP with its bids and derived status.
func (h *Handler) GetRFP(w http.ResponseWriter, r *http.Request) {
	rfpID, err := rfpIDParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	view, err := h.workflows.RFPDetail(r.Context(), rfpID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

// EncryptBidRequest is the request body for EncryptBid.
type EncryptBidRequest struct {
	BidText string `json:"bid_text" validate:"required"`
}

// EncryptBidResponse returns the sealed bid held for submission.
type EncryptBidResponse struct {
	Ciphertext string `json:"ciphertext"`
}

// EncryptBid seals a bid against the RFP's encryption key and holds the
// ciphertext for a subsequent SubmitBid call.
func (h *Handler) EncryptBid(w http.ResponseWriter, r *http.Request) {
	rfpID, err := rfpIDParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var req EncryptBidRequest
	if err := decodeBody(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	ciphertext, err := h.workflows.EncryptBid(r.Context(), rfpID, req.BidText)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, EncryptBidResponse{Ciphertext: ciphertext})
}

// SubmitBidResponse reports the index assigned to the submitted bid.
type SubmitBidResponse struct {
	BidIndex uint64 `json:"bid_index"`
}

// SubmitBid submits the held ciphertext on-chain.
func (h *Handler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	rfpID, err := rfpIDParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	index, err := h.workflows.SubmitBid(r.Context(), rfpID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SubmitBidResponse{BidIndex: index})
}

// RevealResponse returns the ordered plaintexts, one per bid index.
type RevealResponse struct {
	Plaintexts []string `json:"plaintexts"`
}

// RevealBids decrypts and reveals all bids of an RFP in one transaction.
func (h *Handler) RevealBids(w http.ResponseWriter, r *http.Request) {
	rfpID, err := rfpIDParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	plaintexts, err := h.workflows.Reveal(r.Context(), rfpID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, RevealResponse{Plaintexts: plaintexts})
}

// CreateOrganizationRequest is the request body for CreateOrganization.
type CreateOrganizationRequest struct {
	Name string `json:"name" validate:"required"`
}

// OrganizationList is the API response for ListOrganizations.
type OrganizationList struct {
	Organizations []orchestrator.OrganizationView `json:"organizations"`
}

// CreateOrganization creates a new organization.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if err := decodeBody(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	id, err := h.workflows.CreateOrganization(r.Context(), req.Name)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreatedResponse{ID: id})
}

// ListOrganizations lists all organizations, oldest first.
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	views, err := h.workflows.Organizations(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, OrganizationList{Organizations: views})
}

// decodeBody decodes and validates a JSON request body into out.
func decodeBody(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: %s", ErrBadRequest, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %s", ErrBadRequest, err)
	}
	return nil
}

func rfpIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "rfpID")
	rfpID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed RFP id %q", ErrBadRequest, raw)
	}
	return rfpID, nil
}
