// Package lists reads the face lists offered by the remote lookup endpoint.
package lists

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// List is one list offered for upload
type List struct {
	ListID   string `json:"list_id"`
	UserData string `json:"user_data"`
}

// Label is the human form shown in a selector
func (l List) Label() string {
	return fmt.Sprintf("%s (%s)", l.UserData, l.ListID)
}

type listsResponse struct {
	Lists []List `json:"lists"`
}

var ErrNotFound = errors.New("list not found")

type Client struct {
	requestURL *url.URL
	client     *http.Client
}

// NewClient returns a client of the lookup endpoint at serverURL. A zero
// timeout means no timeout.
func NewClient(serverURL string, timeout time.Duration) (*Client, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, errors.New("please define the lists url with a scheme and host, e.g. `http://192.168.18.70:5000/6/lists`")
	}
	return &Client{
		requestURL: parsedURL,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// Fetch downloads all lists
func (c *Client) Fetch(ctx context.Context) ([]List, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching lists: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	lists, err := decodeLists(resp)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "lists fetched", "url", c.requestURL.String(), "count", len(lists))
	return lists, nil
}

func decodeLists(resp *http.Response) ([]List, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status: %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// some servers send text/json or text/plain, the body decides
	var lr listsResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			return nil, fmt.Errorf("decoding json response failed, content type %s: %w", ct, err)
		}
		return nil, fmt.Errorf("decoding json response failed: %w", err)
	}
	return lr.Lists, nil
}

// Select returns the list whose id or user data equals key
func Select(lists []List, key string) (List, error) {
	for _, l := range lists {
		if l.ListID == key {
			return l, nil
		}
	}
	for _, l := range lists {
		if l.UserData == key {
			return l, nil
		}
	}
	return List{}, fmt.Errorf("%w: %s", ErrNotFound, key)
}
