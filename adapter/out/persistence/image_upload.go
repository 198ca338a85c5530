package persistence

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/benchscope/benchscope/core/port/out"
	"github.com/benchscope/benchscope/pkg/apperr"
)

const imageUploadPath = "/open-apis/im/v1/images"

var _ out.ImageUploader = (*BitableClient)(nil)

type imageUploadData struct {
	ImageKey string `json:"image_key"`
}

// UploadImage pushes PNG bytes to the Feishu image endpoint and returns the
// image key referenced from interactive cards. A token-expired response gets
// one forced refresh, matching the JSON call path.
func (c *BitableClient) UploadImage(ctx context.Context, png []byte) (string, error) {
	return c.uploadImage(ctx, png, true)
}

func (c *BitableClient) uploadImage(ctx context.Context, png []byte, allowRefresh bool) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("image_type", "message"); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("image", "cover.png")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(png); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+imageUploadPath, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.SpreadsheetUnavailable("image upload failed", err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", apperr.SpreadsheetUnavailable("image upload response unreadable", err)
	}

	if _, expired := tokenExpiredCodes[envelope.Code]; expired {
		if !allowRefresh {
			return "", apperr.TokenExpired("feishu-image")
		}
		if _, err := c.forceRefreshToken(ctx); err != nil {
			return "", err
		}
		return c.uploadImage(ctx, png, false)
	}
	if envelope.Code != 0 {
		return "", fmt.Errorf("image upload rejected: code=%d msg=%s", envelope.Code, envelope.Msg)
	}

	var data imageUploadData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return "", fmt.Errorf("decode image upload data: %w", err)
	}
	return data.ImageKey, nil
}
