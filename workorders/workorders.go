// Package workorders is a thin resource client over the session
// layer's HTTP pipeline. It adds no behaviour of its own; tenancy,
// CSRF, and refresh-and-retry all come from httpclient.
package workorders

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/maintboard/maintboard-go/httpclient"
)

const basePath = "/api/workorders/"

// WorkOrder is one maintenance work order.
type WorkOrder struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority,omitempty"`
	AssetID     string    `json:"asset_id,omitempty"`
	AssignedTo  string    `json:"assigned_to,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateRequest is the payload for creating a work order.
type CreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	AssetID     string `json:"asset_id,omitempty"`
}

// Client calls the work-order endpoints.
type Client struct {
	http *httpclient.Client
}

func NewClient(http *httpclient.Client) *Client {
	return &Client{http: http}
}

// List returns the tenant's work orders.
func (c *Client) List(ctx context.Context) ([]WorkOrder, error) {
	var out struct {
		Results []WorkOrder `json:"results"`
	}
	if err := c.http.Get(ctx, basePath, &out); err != nil {
		return nil, errors.Wrap(err, "[workorders.List]")
	}
	return out.Results, nil
}

// Get returns one work order by ID.
func (c *Client) Get(ctx context.Context, id string) (WorkOrder, error) {
	var out WorkOrder
	if err := c.http.Get(ctx, basePath+id+"/", &out); err != nil {
		return WorkOrder{}, errors.Wrapf(err, "[workorders.Get] %s", id)
	}
	return out, nil
}

// Create opens a new work order.
func (c *Client) Create(ctx context.Context, req CreateRequest) (WorkOrder, error) {
	var out WorkOrder
	if err := c.http.Post(ctx, basePath, req, &out); err != nil {
		return WorkOrder{}, errors.Wrap(err, "[workorders.Create]")
	}
	return out, nil
}
