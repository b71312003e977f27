package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"

	"github.com/prior-auth/paw-app/conf"
	"github.com/prior-auth/paw-app/log"
	"github.com/prior-auth/paw-app/paw/constants"
	customErrors "github.com/prior-auth/paw-app/paw/errors"
)

// Caller executes outbound requests against a named destination with
// per-destination timeout and retry semantics. Status reads are idempotent
// and submissions carry a case-scoped reference, so retrying is safe.
type Caller interface {
	Call(ctx context.Context, destination, operation string, params interface{}) ([]byte, error)
}

// Destination is the per-destination outbound configuration.
type Destination struct {
	Name    string
	BaseURL string
	Timeout time.Duration
	Retries int
}

// Config carries the env-sourced defaults applied to destinations that do
// not override them.
type Config struct {
	TimeoutSec int `conf:"PAW_CLIENT_TIMEOUT_SEC" conf_default:"30"`
	Retries    int `conf:"PAW_CLIENT_RETRIES" conf_default:"3"`
}

// LoadConfig reads the client defaults from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := conf.Checkout(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Ensure ResilientClient satisfies the interface
var _ Caller = &ResilientClient{}

// ResilientClient is the uniform outbound executor used by every gateway and
// the generation client.
type ResilientClient struct {
	destinations map[string]Destination
	defaults     Config
	logger       logrus.FieldLogger
}

func NewResilientClient(defaults Config, destinations ...Destination) *ResilientClient {
	c := &ResilientClient{
		destinations: make(map[string]Destination, len(destinations)),
		defaults:     defaults,
		logger:       log.Gateway,
	}
	for _, d := range destinations {
		c.destinations[d.Name] = d
	}
	return c
}

// Register adds or replaces a destination.
func (c *ResilientClient) Register(d Destination) {
	c.destinations[d.Name] = d
}

// Call POSTs the JSON-encoded params to {base}/{operation} and returns the
// raw response body. Client errors (4xx) fail immediately without retry;
// transport errors and 5xx responses are retried up to the destination's
// configured count with exponential backoff capped at 8s. Exhausting retries
// surfaces the last error.
func (c *ResilientClient) Call(ctx context.Context, destination, operation string, params interface{}) ([]byte, error) {
	dest, ok := c.destinations[destination]
	if !ok {
		return nil, &customErrors.ConfigurationError{
			Err:   fmt.Errorf("destination %s not registered", destination),
			Payer: destination,
		}
	}

	retries := dest.Retries
	if retries == 0 {
		retries = c.defaults.Retries
	}
	timeout := dest.Timeout
	if timeout == 0 {
		timeout = time.Duration(c.defaults.TimeoutSec) * time.Second
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request for %s/%s: %w", destination, operation, err)
	}

	reqID := uuid.NewRandom()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		dest.BaseURL+"/"+operation, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(constants.HeaderRequestID, reqID.String())
	req.Header.Set(constants.HeaderOperation, operation)

	httpClient := c.newHTTPClient(retries, timeout)

	c.logger.WithFields(logrus.Fields{
		"request_id":  reqID.String(),
		"destination": destination,
		"operation":   operation,
	}).Infoln("outbound request")

	resp, err := httpClient.Do(req)
	if resp != nil {
		/* #nosec -- it's OK for us to ignore errors when attempting to cleanup the response body */
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()
	}
	if err != nil {
		return nil, &customErrors.NetworkError{Err: err, Destination: destination, Attempts: retries + 1}
	}

	c.logger.WithFields(logrus.Fields{
		"request_id":  reqID.String(),
		"destination": destination,
		"resp_code":   resp.StatusCode,
	}).Infoln("outbound response")

	if resp.StatusCode >= http.StatusBadRequest {
		// Attempt to read the body in case it offers valuable troubleshooting info
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &customErrors.UpstreamError{
			Err:         fmt.Errorf("received incorrect status code %d body %s", resp.StatusCode, string(respBody)),
			Destination: destination,
			StatusCode:  resp.StatusCode,
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &customErrors.NetworkError{Err: err, Destination: destination, Attempts: retries + 1}
	}
	return respBody, nil
}

func (c *ResilientClient) newHTTPClient(retries int, timeout time.Duration) *retryablehttp.Client {
	httpClient := retryablehttp.NewClient()
	httpClient.Logger = nil
	httpClient.RetryMax = retries
	httpClient.HTTPClient.Timeout = timeout
	httpClient.Backoff = waitSchedule
	httpClient.CheckRetry = checkRetry
	return httpClient
}

// waitSchedule waits min(2^(attempt-1), 8) seconds between attempts.
func waitSchedule(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	wait := time.Duration(1<<uint(attemptNum)) * time.Second
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}

// checkRetry retries transport errors and server errors; client errors are
// never retried and fail immediately.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return true, nil
	}
	return false, nil
}
