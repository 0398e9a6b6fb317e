// Package crm implements the read-side adapter for the external CRM: contact
// lookup by phone and lead/pipeline resolution. The engine never writes to
// the CRM.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrLookupFailed signals the CRM was unreachable or answered with a server
// error. Callers must surface it rather than treat it as "no match": a false
// negative here would mislabel a pinned client as free.
var ErrLookupFailed = errors.New("crm: lookup failed")

// Contact is a CRM contact matched by phone. LeadIDs lists the deals embedded
// on the contact card; not every contact has a computed pipeline position, so
// callers may need to resolve scope from the raw leads.
type Contact struct {
	ID        int64
	CreatedAt time.Time
	LeadIDs   []int64
}

// PipelineStatus locates a contact's active lead in the sales funnel. CityID
// comes from the lead's city attribute and scopes term matching.
type PipelineStatus struct {
	PipelineID int64
	StatusID   int64
	CityID     int64
}

// Lead is a CRM deal snapshot used by batch fetches.
type Lead struct {
	ID         int64
	ContactID  int64
	PipelineID int64
	StatusID   int64
	CityID     int64
}

const defaultFetchParallelism = 4

// Client talks to the CRM over its REST API.
type Client struct {
	baseURL     string
	token       string
	httpc       *http.Client
	parallelism int
}

// NewClient builds a CRM client. The timeout bounds every call; a timeout is
// reported as ErrLookupFailed per the engine's error contract.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		token:       token,
		httpc:       &http.Client{Timeout: timeout},
		parallelism: defaultFetchParallelism,
	}
}

type contactPayload struct {
	ID        int64 `json:"id"`
	CreatedAt int64 `json:"created_at"`
	Embedded  struct {
		Leads []struct {
			ID int64 `json:"id"`
		} `json:"leads"`
	} `json:"_embedded"`
}

type contactsResponse struct {
	Contacts []contactPayload `json:"contacts"`
}

// FindContactsByPhone returns every CRM contact whose phone matches, newest
// first by creation time.
func (c *Client) FindContactsByPhone(ctx context.Context, phone string) ([]Contact, error) {
	endpoint := fmt.Sprintf("%s/api/v1/contacts?phone=%s", c.baseURL, url.QueryEscape(phone))

	var payload contactsResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	contacts := make([]Contact, 0, len(payload.Contacts))
	for _, p := range payload.Contacts {
		c := Contact{ID: p.ID, CreatedAt: time.Unix(p.CreatedAt, 0).UTC()}
		for _, l := range p.Embedded.Leads {
			c.LeadIDs = append(c.LeadIDs, l.ID)
		}
		contacts = append(contacts, c)
	}
	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].CreatedAt.After(contacts[j].CreatedAt)
	})
	return contacts, nil
}

type pipelineStatusResponse struct {
	PipelineID int64 `json:"pipeline_id"`
	StatusID   int64 `json:"status_id"`
	CityID     int64 `json:"city_id"`
}

// GetContactPipelineStatus resolves the contact's current lead position.
func (c *Client) GetContactPipelineStatus(ctx context.Context, contactID int64) (PipelineStatus, error) {
	endpoint := fmt.Sprintf("%s/api/v1/contacts/%d/pipeline-status", c.baseURL, contactID)

	var payload pipelineStatusResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return PipelineStatus{}, err
	}
	return PipelineStatus{
		PipelineID: payload.PipelineID,
		StatusID:   payload.StatusID,
		CityID:     payload.CityID,
	}, nil
}

type leadResponse struct {
	ID         int64 `json:"id"`
	ContactID  int64 `json:"contact_id"`
	PipelineID int64 `json:"pipeline_id"`
	StatusID   int64 `json:"status_id"`
	CityID     int64 `json:"city_id"`
}

// FetchLeads loads the given leads with bounded parallelism. Missing leads
// are skipped; transport failures abort the whole batch.
func (c *Client) FetchLeads(ctx context.Context, leadIDs []int64) ([]Lead, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)

	var mu sync.Mutex
	leads := make([]Lead, 0, len(leadIDs))

	for _, id := range leadIDs {
		g.Go(func() error {
			endpoint := fmt.Sprintf("%s/api/v1/leads/%d", c.baseURL, id)
			var payload leadResponse
			if err := c.getJSON(gctx, endpoint, &payload); err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil
				}
				return err
			}
			mu.Lock()
			leads = append(leads, Lead{
				ID:         payload.ID,
				ContactID:  payload.ContactID,
				PipelineID: payload.PipelineID,
				StatusID:   payload.StatusID,
				CityID:     payload.CityID,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(leads, func(i, j int) bool { return leads[i].ID < leads[j].ID })
	return leads, nil
}

// ErrNotFound is returned for contacts or leads the CRM does not know.
var ErrNotFound = errors.New("crm: not found")

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("crm: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("crm: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("crm: decode response: %w", err)
	}
	return nil
}
