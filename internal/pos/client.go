package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nouhin/internal"
	"nouhin/internal/config"
)

const productsPageSize = 100

// Client talks to the POS platform: client-credentials auth, a GraphQL
// surface for departments and a REST surface for products.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *throttle
	tokens     *TokenCache
}

func NewClient(cfg config.Config, tokens *TokenCache) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.PosTimeoutMs) * time.Millisecond},
		limiter:    newThrottle(cfg.PosRateLimitRPS),
		tokens:     tokens,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if token := c.tokens.Get(); token != "" {
		return token, nil
	}

	if strings.TrimSpace(c.cfg.PosClientID) == "" || strings.TrimSpace(c.cfg.PosClientSecret) == "" {
		return "", errors.New("missing POS_CLIENT_ID or POS_CLIENT_SECRET")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", c.cfg.PosScope)

	endpoint := fmt.Sprintf("%s/app/%s/token", strings.TrimRight(c.cfg.PosAuthBaseURL, "/"), c.cfg.PosContractID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.PosClientID, c.cfg.PosClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("pos token error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", errors.New("pos token response has no access_token")
	}

	c.tokens.Put(token.AccessToken, time.Duration(token.ExpiresIn)*time.Second)
	return token.AccessToken, nil
}

// do sends an authorized request, refreshing the token once if the API
// rejects the cached one.
func (c *Client) do(ctx context.Context, build func(token string) (*http.Request, error)) ([]byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}

		c.limiter.wait()

		req, err := build(token)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.tokens.Invalidate()
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("pos api error: status=%d body=%s", resp.StatusCode, string(body))
		}
		return body, nil
	}
	return nil, errors.New("pos request failed after token refresh")
}

const departmentsQuery = `query($first: Int, $after: String) {
  departments(first: $first, after: $after) {
    pageInfo { hasNextPage endCursor }
    nodes { departmentId departmentName parentDepartmentId level }
  }
}`

type departmentsResponse struct {
	Data struct {
		Departments struct {
			PageInfo struct {
				HasNextPage bool    `json:"hasNextPage"`
				EndCursor   *string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []struct {
				DepartmentID       string  `json:"departmentId"`
				DepartmentName     string  `json:"departmentName"`
				ParentDepartmentID *string `json:"parentDepartmentId"`
				Level              *int    `json:"level"`
			} `json:"nodes"`
		} `json:"departments"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ListDepartments pages through the department tree over GraphQL.
func (c *Client) ListDepartments(ctx context.Context) ([]internal.PosDepartment, error) {
	endpoint := fmt.Sprintf("%s/%s/pos/graphql", strings.TrimRight(c.cfg.PosAPIBaseURL, "/"), c.cfg.PosContractID)

	var out []internal.PosDepartment
	var after *string

	for {
		payload := map[string]any{
			"query":     departmentsQuery,
			"variables": map[string]any{"first": 100, "after": after},
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}

		body, err := c.do(ctx, func(token string) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		})
		if err != nil {
			return nil, err
		}

		var resp departmentsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		if len(resp.Errors) > 0 {
			return nil, fmt.Errorf("pos graphql error: %s", resp.Errors[0].Message)
		}

		for _, node := range resp.Data.Departments.Nodes {
			out = append(out, internal.PosDepartment{
				DepartmentID:       node.DepartmentID,
				Name:               node.DepartmentName,
				ParentDepartmentID: node.ParentDepartmentID,
				Level:              node.Level,
			})
		}

		info := resp.Data.Departments.PageInfo
		if !info.HasNextPage || info.EndCursor == nil || *info.EndCursor == "" {
			break
		}
		after = info.EndCursor
	}

	return out, nil
}

type productRecord struct {
	ProductID    string  `json:"productId"`
	ProductCode  string  `json:"productCode"`
	DepartmentID *string `json:"categoryId"`
}

// ListProducts pages through the REST product listing and keeps only the
// requested product codes. An empty wanted set returns everything.
func (c *Client) ListProducts(ctx context.Context, wanted []string) ([]internal.PosProduct, error) {
	wantedSet := map[string]bool{}
	for _, code := range wanted {
		wantedSet[code] = true
	}

	base := fmt.Sprintf("%s/%s/pos/products", strings.TrimRight(c.cfg.PosAPIBaseURL, "/"), c.cfg.PosContractID)

	var out []internal.PosProduct
	for page := 1; ; page++ {
		endpoint := base + "?limit=" + strconv.Itoa(productsPageSize) + "&page=" + strconv.Itoa(page)

		body, err := c.do(ctx, func(token string) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+token)
			return req, nil
		})
		if err != nil {
			return nil, err
		}

		var records []productRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, err
		}

		for _, record := range records {
			if record.ProductCode == "" {
				continue
			}
			if len(wantedSet) > 0 && !wantedSet[record.ProductCode] {
				continue
			}
			productID := record.ProductID
			out = append(out, internal.PosProduct{
				ProductCode:  record.ProductCode,
				ProductID:    &productID,
				DepartmentID: record.DepartmentID,
			})
		}

		if len(records) < productsPageSize {
			break
		}
	}

	return out, nil
}
