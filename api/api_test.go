package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shutter-network/SealedBidRFP/log"
	"github.com/shutter-network/SealedBidRFP/orchestrator"
	"github.com/shutter-network/SealedBidRFP/storage/ledger"
	"github.com/shutter-network/SealedBidRFP/timelock"
)

// fakeWorkflows scripts the orchestrator surface per test.
type fakeWorkflows struct {
	createErr  error
	createID   uint64
	lastCreate orchestrator.CreateRequest

	encryptErr error
	submitErr  error
	revealErr  error

	listing  *orchestrator.Listing
	listErr  error
	lastList orchestrator.ListRequest

	detail *orchestrator.RFPView
}

func (f *fakeWorkflows) Create(ctx context.Context, req orchestrator.CreateRequest) (uint64, error) {
	f.lastCreate = req
	return f.createID, f.createErr
}

func (f *fakeWorkflows) EncryptBid(ctx context.Context, rfpID uint64, bidText string) (string, error) {
	if f.encryptErr != nil {
		return "", f.encryptErr
	}
	return "0xc0ffee", nil
}

func (f *fakeWorkflows) SubmitBid(ctx context.Context, rfpID uint64) (uint64, error) {
	if f.submitErr != nil {
		return 0, f.submitErr
	}
	return 2, nil
}

func (f *fakeWorkflows) Reveal(ctx context.Context, rfpID uint64) ([]string, error) {
	if f.revealErr != nil {
		return nil, f.revealErr
	}
	return []string{"first", "second"}, nil
}

func (f *fakeWorkflows) List(ctx context.Context, req orchestrator.ListRequest) (*orchestrator.Listing, error) {
	f.lastList = req
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listing != nil {
		return f.listing, nil
	}
	return &orchestrator.Listing{RFPs: []orchestrator.RFPView{}}, nil
}

func (f *fakeWorkflows) RFPDetail(ctx context.Context, rfpID uint64) (*orchestrator.RFPView, error) {
	if f.detail == nil {
		return nil, ledger.ErrUnavailable
	}
	return f.detail, nil
}

func (f *fakeWorkflows) CreateOrganization(ctx context.Context, name string) (uint64, error) {
	return 1, nil
}

func (f *fakeWorkflows) Organizations(ctx context.Context) ([]orchestrator.OrganizationView, error) {
	return []orchestrator.OrganizationView{{ID: 0, Name: "ACME"}}, nil
}

func newTestHandler(t *testing.T) (*fakeWorkflows, *StatusLine, http.Handler) {
	t.Helper()
	workflows := &fakeWorkflows{}
	status := &StatusLine{}
	h := NewHandler(workflows, status, log.NewDefaultLogger("test"))
	return workflows, status, h.Router()
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRFPEndpoint(t *testing.T) {
	workflows, _, router := newTestHandler(t)
	workflows.createID = 7

	rec := doRequest(t, router, http.MethodPost, "/v1/rfps", `{
		"title": "New data center",
		"description": "Sealed bids please",
		"submission_deadline": 2000,
		"reveal_deadline": 3000,
		"organization_id": 4
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, uint64(7), resp.ID)
	require.Equal(t, "New data center", workflows.lastCreate.Title)
	require.Equal(t, uint64(4), workflows.lastCreate.OrganizationID)
}

func TestCreateRFPEndpointRejectsBadBodies(t *testing.T) {
	_, _, router := newTestHandler(t)

	// Missing required fields.
	rec := doRequest(t, router, http.MethodPost, "/v1/rfps", `{"title": "only a title"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown fields.
	rec = doRequest(t, router, http.MethodPost, "/v1/rfps", `{
		"title": "t", "description": "d",
		"submission_deadline": 2000, "reveal_deadline": 3000,
		"surprise": true
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Not JSON at all.
	rec = doRequest(t, router, http.MethodPost, "/v1/rfps", "not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRFPsEndpoint(t *testing.T) {
	workflows, _, router := newTestHandler(t)
	workflows.listing = &orchestrator.Listing{
		RFPs:    []orchestrator.RFPView{{ID: 3, Title: "t", Status: orchestrator.StatusOpenForSubmission}},
		HasMore: true,
	}

	rec := doRequest(t, router, http.MethodGet, "/v1/rfps?refresh=true&org=9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, workflows.lastList.Refresh)
	require.NotNil(t, workflows.lastList.OrganizationID)
	require.Equal(t, uint64(9), *workflows.lastList.OrganizationID)

	var listing orchestrator.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.True(t, listing.HasMore)
	require.Len(t, listing.RFPs, 1)

	rec = doRequest(t, router, http.MethodGet, "/v1/rfps?org=bogus", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBidEndpoints(t *testing.T) {
	workflows, _, router := newTestHandler(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/rfps/5/bid/encrypt", `{"bid_text": "offer"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var encResp EncryptBidResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &encResp))
	require.Equal(t, "0xc0ffee", encResp.Ciphertext)

	rec = doRequest(t, router, http.MethodPost, "/v1/rfps/5/bid", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var subResp SubmitBidResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subResp))
	require.Equal(t, uint64(2), subResp.BidIndex)

	// Submitting without a held ciphertext is a conflict.
	workflows.submitErr = orchestrator.ErrPrecondition
	rec = doRequest(t, router, http.MethodPost, "/v1/rfps/5/bid", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/v1/rfps/bogus/bid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevealEndpoint(t *testing.T) {
	workflows, _, router := newTestHandler(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/rfps/5/reveal", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp RevealResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"first", "second"}, resp.Plaintexts)

	// A key that is not released yet is not an error, just "retry later".
	workflows.revealErr = timelock.ErrKeyNotReleased
	rec = doRequest(t, router, http.MethodPost, "/v1/rfps/5/reveal", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code int
	}{
		{orchestrator.ErrValidation, http.StatusBadRequest},
		{orchestrator.ErrPrecondition, http.StatusConflict},
		{timelock.ErrKeyNotReleased, http.StatusAccepted},
		{ledger.ErrRejected, http.StatusForbidden},
		{ledger.ErrReverted, http.StatusUnprocessableEntity},
		{ledger.ErrUnavailable, http.StatusBadGateway},
		{&timelock.ServiceError{Status: 500, Description: "down"}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	} {
		require.Equal(t, tc.code, HttpCodeForError(tc.err), "%v", tc.err)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, status, router := newTestHandler(t)
	status.Set("RFP created successfully with ID 3")

	rec := doRequest(t, router, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "RFP created successfully with ID 3", resp.LatestStatus)
}

func TestOrganizationEndpoints(t *testing.T) {
	_, _, router := newTestHandler(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/organizations", `{"name": "ACME"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/v1/organizations", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/v1/organizations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp OrganizationList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ACME", resp.Organizations[0].Name)
}
