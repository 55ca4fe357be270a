// Package aijobs polls asynchronous AI maintenance-assistant jobs.
// Like every other consumer it is a generic caller of the HTTP
// pipeline; orchestration stays server-side.
package aijobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/maintboard/maintboard-go/httpclient"
)

const basePath = "/api/ai/jobs/"

// Job statuses reported by the backend.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Job is one asynchronous assistant job.
type Job struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Prompt string          `json:"prompt,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Terminal reports whether the job has settled.
func (j Job) Terminal() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// Client submits and polls assistant jobs.
type Client struct {
	http  *httpclient.Client
	clock clockwork.Clock
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClock replaces the poll clock (tests).
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) { c.clock = clock }
}

func NewClient(http *httpclient.Client, opts ...ClientOption) *Client {
	c := &Client{http: http, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit starts a job.
func (c *Client) Submit(ctx context.Context, prompt string) (Job, error) {
	var out Job
	body := struct {
		Prompt string `json:"prompt"`
	}{Prompt: prompt}
	if err := c.http.Post(ctx, basePath, body, &out); err != nil {
		return Job{}, errors.Wrap(err, "[aijobs.Submit]")
	}
	return out, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, id string) (Job, error) {
	var out Job
	if err := c.http.Get(ctx, basePath+id+"/", &out); err != nil {
		return Job{}, errors.Wrapf(err, "[aijobs.Status] %s", id)
	}
	return out, nil
}

// Await polls a job until it settles or the context ends.
func (c *Client) Await(ctx context.Context, id string, interval time.Duration) (Job, error) {
	for {
		job, err := c.Status(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if job.Terminal() {
			return job, nil
		}

		timer := c.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Job{}, errors.Wrapf(ctx.Err(), "[aijobs.Await] %s", id)
		case <-timer.Chan():
		}
	}
}
