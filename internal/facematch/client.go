// Package facematch is the HTTP client for the remote face-match and
// document-extraction capability. The matching algorithm itself is opaque;
// this package only speaks its request/response contract and normalizes
// failures.
package facematch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	id "verigate/pkg/domain"
)

// Verifier is the interface consumed by the verification orchestrator.
// The production implementation is Client; tests substitute fakes.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error)
	Cleanup(ctx context.Context, caseID id.CaseID, sessionID id.SessionID, role id.PersonRole, attemptNumber int) error
}

// Client calls the remote verification service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

const defaultTimeout = 30 * time.Second

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// Verify submits a verification request and decodes the outcome. Transport
// and protocol failures are normalized into RemoteError categories.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewRemoteError(ErrorInternal, "encode verify request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/verify", bytes.NewReader(body))
	if err != nil {
		return nil, NewRemoteError(ErrorInternal, "build verify request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, NewRemoteError(ErrorTimeout, "verify call timed out", err)
		}
		return nil, NewRemoteError(ErrorOutage, "verify call failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return nil, NewRemoteError(ErrorOutage, fmt.Sprintf("verifier returned %d", resp.StatusCode), nil)
	default:
		return nil, NewRemoteError(ErrorRejected, fmt.Sprintf("verifier returned %d", resp.StatusCode), nil)
	}

	var out VerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, NewRemoteError(ErrorBadData, "decode verify response", err)
	}
	if !out.Confidence.IsValid() {
		return nil, NewRemoteError(ErrorBadData, fmt.Sprintf("unknown confidence level %q", out.Confidence), nil)
	}
	if out.Similarity < 0 || out.Similarity > 100 {
		return nil, NewRemoteError(ErrorBadData, fmt.Sprintf("similarity %d out of range", out.Similarity), nil)
	}
	return &out, nil
}

// Cleanup asks the verifier to discard artifacts of a previous attempt.
// Best-effort: callers log failures and move on.
func (c *Client) Cleanup(ctx context.Context, caseID id.CaseID, sessionID id.SessionID, role id.PersonRole, attemptNumber int) error {
	q := url.Values{}
	q.Set("case_id", caseID.String())
	q.Set("session_id", sessionID.String())
	q.Set("person_role", role.String())
	q.Set("attempt_number", fmt.Sprintf("%d", attemptNumber))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/cleanup?"+q.Encode(), nil)
	if err != nil {
		return NewRemoteError(ErrorInternal, "build cleanup request", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return NewRemoteError(ErrorOutage, "cleanup call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return NewRemoteError(ErrorRejected, fmt.Sprintf("cleanup returned %d", resp.StatusCode), nil)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
