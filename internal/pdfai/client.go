package pdfai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"nouhin/internal"
	"nouhin/internal/config"
	"nouhin/internal/extract"
)

const extractionPrompt = `この納品書PDFから次のJSONだけを返してください。説明文は不要です。
{
  "delivery_date": "YYYY-MM-DD",
  "total_amount": number or null,
  "items": [
    {
      "delivery_date": "YYYY-MM-DD or empty",
      "document_number": "string or null",
      "product_code": "string",
      "product_name": "string",
      "quantity": number,
      "unit_price": number,
      "amount": number or null,
      "remarks": "string or null"
    }
  ]
}`

// Client extracts delivery data from PDFs through a generative model's
// document understanding endpoint.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.PDFAITimeoutMs) * time.Millisecond},
	}
}

type generateRequest struct {
	Contents []requestContent `json:"contents"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Client) ExtractPDF(ctx context.Context, content []byte, meta extract.Meta) (internal.Document, error) {
	if strings.TrimSpace(c.cfg.PDFAIAPIKey) == "" {
		return internal.Document{}, errors.New("missing PDF_AI_API_KEY")
	}

	reqBody := generateRequest{
		Contents: []requestContent{{
			Parts: []requestPart{
				{Text: extractionPrompt},
				{InlineData: &inlineData{
					MimeType: "application/pdf",
					Data:     base64.StdEncoding.EncodeToString(content),
				}},
			},
		}},
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return internal.Document{}, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.PDFAIBaseURL, "/"), c.cfg.PDFAIModel, c.cfg.PDFAIAPIKey)

	body, err := c.post(ctx, endpoint, encoded)
	if err != nil {
		return internal.Document{}, err
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return internal.Document{}, fmt.Errorf("decode model response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return internal.Document{}, errors.New("model returned no candidates")
	}

	var p payload
	raw := stripCodeFence(resp.Candidates[0].Content.Parts[0].Text)
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return internal.Document{}, fmt.Errorf("decode extraction payload: %w", err)
	}

	return mapPayload(p, meta), nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 5 {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				time.Sleep(backoff)
				lastErr = fmt.Errorf("model api status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("model api error: status=%d body=%s", resp.StatusCode, string(respBody))
		}

		return respBody, nil
	}

	if lastErr == nil {
		lastErr = errors.New("model request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
