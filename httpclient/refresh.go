package httpclient

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"

	apperrors "github.com/maintboard/maintboard-go/internal/errors"
	"github.com/maintboard/maintboard-go/storage"
)

// recover runs the response-failure phase for an authentication
// failure. At most one refresh call is in flight at any moment; every
// request that fails while it is outstanding waits for its outcome
// and is replayed (or rejected) strictly after it settles.
func (c *Client) recover(ctx context.Context, method, path string, body, out any, retried bool, apiErr *APIError) error {
	// No recovery when the failing call is itself an auth endpoint,
	// when refresh is known to be unavailable for this client
	// lifetime, or when this request was already replayed once.
	if isAuthPath(path) || c.refreshDisabled.Load() || retried {
		c.sessions.ClearSession()
		c.logAPIError(apiErr)
		return apiErr
	}

	// Single flight: concurrent auth failures share one refresh call.
	// The refresh itself outlives any one caller's cancellation; an
	// abandoned request simply stops waiting.
	result := c.group.DoChan("session-refresh", func() (any, error) {
		return nil, c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "[Client.recover] %s %s", method, path)
	case res := <-result:
		if res.Err != nil {
			return errors.Wrapf(res.Err, "[Client.recover] %s %s", method, path)
		}
	}

	c.metrics.RequestRetries.Inc()
	return c.do(ctx, method, path, body, out, true)
}

// refresh issues the single refresh call. On failure it force-clears
// the session exactly once, inside the flight, so waiters observe a
// settled session state. A "not found" response permanently disables
// refresh for this client's lifetime.
func (c *Client) refresh(ctx context.Context) error {
	tenant := c.resolver.Config()

	target, err := c.requestURL(tenant, RefreshPath)
	if err != nil {
		return err
	}
	req, err := c.buildRequest(ctx, http.MethodPost, target, tenant, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.GetRequestTimeout())
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RefreshAttempts.WithLabelValues("failure").Inc()
		c.forceClear("refresh-failed")
		return errors.Wrap(err, "[Client.refresh] refresh call")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.metrics.RefreshAttempts.WithLabelValues("success").Inc()
		c.logger.Debug().Msg("session refreshed")
		return nil

	case resp.StatusCode == http.StatusNotFound:
		// The deployment has no refresh capability. Never ask again.
		c.refreshDisabled.Store(true)
		c.metrics.RefreshAttempts.WithLabelValues("not_found").Inc()
		c.logger.Warn().Msg("refresh endpoint not found, disabling refresh for this client")
		c.forceClear("refresh-unavailable")
		return errors.Wrap(apperrors.ErrRefreshUnavailable, "[Client.refresh]")

	default:
		c.metrics.RefreshAttempts.WithLabelValues("failure").Inc()
		c.forceClear("refresh-failed")
		return errors.Wrapf(apperrors.ErrRefreshFailed, "[Client.refresh] status %d", resp.StatusCode)
	}
}

// forceClear ends the session as unrecoverable: identities wiped, the
// tenant's persisted state purged (onboarding and tour progress kept),
// and the cross-tab auth-change signal broadcast.
func (c *Client) forceClear(reason string) {
	schema := ""
	if tenant, ok := c.sessions.ActiveTenant(); ok {
		schema = tenant.SchemaName
	} else {
		schema = c.resolver.Config().SchemaName
	}

	c.sessions.ClearSession()
	if schema != "" && schema != storage.DefaultTenant {
		c.storage.PurgeTenant(schema)
	}
	c.storage.EmitAuthEvent(reason)
}
