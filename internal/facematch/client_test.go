package facematch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "verigate/pkg/domain"
)

func testRequest() VerifyRequest {
	return VerifyRequest{
		CaseID:        "CASE-1",
		SessionID:     id.NewSessionID(),
		DocumentKey:   "blob-doc",
		ReferenceKey:  "blob-ref",
		PersonRole:    id.RoleWitness,
		DocumentKind:  id.DocumentNationalID,
		AttemptNumber: 1,
	}
}

func TestVerifySuccess(t *testing.T) {
	var got VerifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/verify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(VerifyResponse{
			Match:      true,
			Similarity: 94,
			Confidence: ConfidenceHigh,
			ExtractedIdentity: &ExtractedIdentity{
				Name:             "Dana Cohen",
				NationalIDNumber: "204837261",
				Nationality:      "Israeli",
			},
			AttemptNumber: 1,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	resp, err := client.Verify(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, resp.Match)
	assert.Equal(t, 94, resp.Similarity)
	assert.Equal(t, ConfidenceHigh, resp.Confidence)
	require.NotNil(t, resp.ExtractedIdentity)
	assert.Equal(t, "Dana Cohen", resp.ExtractedIdentity.Name)

	assert.Equal(t, "blob-doc", got.DocumentKey)
	assert.Equal(t, "blob-ref", got.ReferenceKey)
	assert.Equal(t, 1, got.AttemptNumber)
}

func TestVerifyOverrideFieldsOnWire(t *testing.T) {
	var got VerifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(VerifyResponse{Confidence: ConfidenceHigh})
	}))
	defer srv.Close()

	req := testRequest()
	req.ManualOverride = true
	req.OverrideReason = "document damaged"
	req.ManualIdentity = &ManualIdentity{Name: "Jane Doe", NationalIDNumber: "123456789", Nationality: "British"}

	client := NewClient(srv.URL)
	_, err := client.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, got.ManualOverride)
	assert.Equal(t, "document damaged", got.OverrideReason)
	require.NotNil(t, got.ManualIdentity)
	assert.Equal(t, "123456789", got.ManualIdentity.NationalIDNumber)
}

func TestVerifyErrorCategories(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorCategory
	}{
		{name: "server error is outage", status: http.StatusInternalServerError, want: ErrorOutage},
		{name: "bad gateway is outage", status: http.StatusBadGateway, want: ErrorOutage},
		{name: "unprocessable is rejected", status: http.StatusUnprocessableEntity, want: ErrorRejected},
		{name: "not found is rejected", status: http.StatusNotFound, want: ErrorRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := NewClient(srv.URL)
			_, err := client.Verify(context.Background(), testRequest())
			require.Error(t, err)
			assert.Equal(t, tt.want, CategoryOf(err))
		})
	}
}

func TestVerifyConnectionRefusedIsOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Verify(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, ErrorOutage, CategoryOf(err))
}

func TestVerifyRejectsMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "not-json"},
		{name: "unknown confidence", body: `{"match":true,"similarity":90,"confidence":"MAYBE"}`},
		{name: "similarity out of range", body: `{"match":true,"similarity":140,"confidence":"HIGH"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL)
			_, err := client.Verify(context.Background(), testRequest())
			require.Error(t, err)
			assert.Equal(t, ErrorBadData, CategoryOf(err))
		})
	}
}

func TestCleanup(t *testing.T) {
	sessionID := id.NewSessionID()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/cleanup", r.URL.Path)
		assert.Equal(t, "CASE-1", r.URL.Query().Get("case_id"))
		assert.Equal(t, sessionID.String(), r.URL.Query().Get("session_id"))
		assert.Equal(t, "witness", r.URL.Query().Get("person_role"))
		assert.Equal(t, "2", r.URL.Query().Get("attempt_number"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.Cleanup(context.Background(), "CASE-1", sessionID, id.RoleWitness, 2)
	require.NoError(t, err)
}

func TestCleanupRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.Cleanup(context.Background(), "CASE-1", id.NewSessionID(), id.RoleWitness, 1)
	require.Error(t, err)
	assert.Equal(t, ErrorRejected, CategoryOf(err))
}

func TestUserMessagePerCategory(t *testing.T) {
	assert.Contains(t, UserMessage(NewRemoteError(ErrorTimeout, "x", nil)), "too long")
	assert.Contains(t, UserMessage(NewRemoteError(ErrorOutage, "x", nil)), "unavailable")
	assert.Contains(t, UserMessage(NewRemoteError(ErrorRejected, "x", nil)), "could not process")
	assert.Contains(t, UserMessage(NewRemoteError(ErrorBadData, "x", nil)), "technical problem")
	assert.Contains(t, UserMessage(context.Canceled), "technical problem")
}
