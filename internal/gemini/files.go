package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/kothari1/NuFleet-AI-SOP/internal/sop"
)

// FileInfo describes a file uploaded through the Files API.
type FileInfo struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	State    string `json:"state"`
	MIMEType string `json:"mimeType"`
}

type fileUploadResp struct {
	File FileInfo `json:"file"`
}

const (
	fileStateProcessing = "PROCESSING"
	fileStateActive     = "ACTIVE"
	fileStateFailed     = "FAILED"
)

// UploadFile sends the file to the Files API with the raw upload protocol
// and waits until the service reports it ACTIVE. Videos are transcoded
// server-side before they can be referenced in a prompt, so the wait can
// take a while for long inputs; the caller's context bounds it.
func (c *Client) UploadFile(ctx context.Context, path, mimeType string) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload file %q: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat upload file %q: %w", path, err)
	}

	endpoint := fmt.Sprintf("%s/upload/v1beta/files", c.cfg.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, f)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	httpReq.ContentLength = stat.Size()
	httpReq.Header.Set("Content-Type", mimeType)
	httpReq.Header.Set("X-Goog-Upload-Protocol", "raw")
	c.buildHeaders(httpReq)

	// Uploads can run well past the per-call timeout; rely on ctx instead.
	uploadClient := &http.Client{}
	resp, err := uploadClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &sop.Error{Kind: sop.KindTransient, Message: "file upload failed", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrMsg(resp.Body))
	}

	var uploaded fileUploadResp
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, &sop.Error{Kind: sop.KindTransient, Message: "undecodable upload response", Retryable: true, Err: err}
	}
	if uploaded.File.Name == "" {
		return nil, sop.RequestErrorf("upload response carried no file name")
	}

	c.logger.Debug("uploaded file", "name", uploaded.File.Name, "state", uploaded.File.State)
	return c.waitForActive(ctx, uploaded.File)
}

// waitForActive polls the file state until the service has finished
// processing it.
func (c *Client) waitForActive(ctx context.Context, file FileInfo) (*FileInfo, error) {
	for file.State == fileStateProcessing || file.State == "" {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}

		updated, err := c.getFile(ctx, file.Name)
		if err != nil {
			return nil, err
		}
		file = *updated
	}

	if file.State != fileStateActive {
		return nil, sop.RequestErrorf("file %s failed to process (state %s)", file.Name, file.State)
	}
	return &file, nil
}

func (c *Client) getFile(ctx context.Context, name string) (*FileInfo, error) {
	endpoint := fmt.Sprintf("%s/v1beta/%s", c.cfg.BaseURL, name)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.buildHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &sop.Error{Kind: sop.KindTransient, Message: "file state check failed", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrMsg(resp.Body))
	}

	var file FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, &sop.Error{Kind: sop.KindTransient, Message: "undecodable file state response", Retryable: true, Err: err}
	}
	return &file, nil
}
