// Package objectstore is the client for the content-addressed storage
// backend. Files are written through short-lived presigned locations; the
// resulting storage keys are the only references the verification capability
// needs.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"verigate/pkg/platform/sentinel"

	id "verigate/pkg/domain"
)

// FileMeta describes the file to be staged.
type FileMeta struct {
	FileName string `json:"file_name"`
	ByteSize int64  `json:"byte_size"`
	MimeType string `json:"mime_type"`
}

// UploadLocation is a short-lived write grant from the storage backend.
type UploadLocation struct {
	WriteLocation string    `json:"write_location"`
	StorageKey    string    `json:"storage_key"`
	Expiry        time.Time `json:"expiry"`
}

// ProgressFunc receives upload progress as 0-100.
type ProgressFunc func(percent int)

// Store is the interface consumed by the asset uploader. The production
// implementation is Client; tests substitute fakes.
type Store interface {
	GetUploadLocation(ctx context.Context, caseID id.CaseID, sessionID id.SessionID, meta FileMeta, role string) (*UploadLocation, error)
	PutFile(ctx context.Context, writeLocation string, content io.Reader, meta FileMeta, progress ProgressFunc) error
}

// Client talks to the storage backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

const defaultTimeout = 60 * time.Second

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

type uploadLocationRequest struct {
	CaseID    id.CaseID    `json:"case_id"`
	SessionID id.SessionID `json:"session_id"`
	File      FileMeta     `json:"file"`
	Role      string       `json:"role"`
}

// GetUploadLocation requests a presigned write location for the given file.
func (c *Client) GetUploadLocation(ctx context.Context, caseID id.CaseID, sessionID id.SessionID, meta FileMeta, role string) (*UploadLocation, error) {
	body, err := json.Marshal(uploadLocationRequest{
		CaseID:    caseID,
		SessionID: sessionID,
		File:      meta,
		Role:      role,
	})
	if err != nil {
		return nil, fmt.Errorf("encode upload location request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/upload-locations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upload location request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get upload location: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get upload location: backend returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var loc UploadLocation
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return nil, fmt.Errorf("decode upload location: %w", err)
	}
	if loc.WriteLocation == "" || loc.StorageKey == "" {
		return nil, fmt.Errorf("upload location missing write_location or storage_key")
	}
	return &loc, nil
}

// PutFile streams the file bytes to the presigned location, reporting
// progress as a 0-100 percentage.
func (c *Client) PutFile(ctx context.Context, writeLocation string, content io.Reader, meta FileMeta, progress ProgressFunc) error {
	reader := newProgressReader(content, meta.ByteSize, progress)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, writeLocation, reader)
	if err != nil {
		return fmt.Errorf("build put request: %w", err)
	}
	req.ContentLength = meta.ByteSize
	req.Header.Set("Content-Type", meta.MimeType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("put file: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusGone {
			return fmt.Errorf("put file: write location expired: %w", sentinel.ErrExpired)
		}
		return fmt.Errorf("put file: backend returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	reader.finish()
	return nil
}
