// Package client implements the HelperClient (spec §4.9): dials the
// helper's unix domain socket, sends one request per connection, and
// applies the per-command retry/idempotency rules the protocol specifies.
// Grounded on original_source's kftray-helper/src/client/{helper_client,
// commands}.rs, translated from synchronous std::thread::sleep retries
// into Go's time.Sleep (the client itself is not on a hot path that needs
// async concurrency).
package client

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/kftray/kftray-core/internal/forwarderrors"
	"github.com/kftray/kftray-core/internal/helper/protocol"
	"github.com/kftray/kftray-core/internal/model"
)

const (
	removeRetryAttempts = 3
	removeRetryDelay    = 500 * time.Millisecond
)

// Client dials the helper's socket for each request.
type Client struct {
	AppID      string
	SocketPath string
}

// New constructs a Client for appID talking to the helper at socketPath.
func New(appID, socketPath string) *Client {
	return &Client{AppID: appID, SocketPath: socketPath}
}

// IsAvailable reports whether the helper is currently reachable.
func (c *Client) IsAvailable() bool {
	conn, err := net.DialTimeout("unix", c.SocketPath, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// sendRequest dials, sends command, and reads back the matched response.
func (c *Client) sendRequest(ctx context.Context, command model.HelperCommand) (model.HelperResponse, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return model.HelperResponse{}, forwarderrors.ErrHelperUnavailable
	}
	defer conn.Close()

	deadline := time.Now().Add(protocol.RequestTimeout)
	_ = conn.SetDeadline(deadline)

	req := protocol.NewRequest(c.AppID, command)
	if err := protocol.WriteMessage(conn, req); err != nil {
		return model.HelperResponse{}, forwarderrors.ErrHelperTransport
	}

	resp, err := protocol.ReadResponse(conn, req.RequestID)
	if err != nil {
		return model.HelperResponse{}, err
	}
	return resp, nil
}

// Ping checks liveness without raising an error on failure, mirroring the
// original's best-effort ping().
func (c *Client) Ping(ctx context.Context) bool {
	resp, err := c.sendRequest(ctx, model.HelperCommand{Ping: true})
	if err != nil {
		return false
	}
	return resp.Result.Kind == model.ResultStringSuccess && resp.Result.String == "pong"
}

// AddLoopbackAddress installs address as a loopback alias. Idempotent:
// "already exists" is success (spec §4.9).
func (c *Client) AddLoopbackAddress(ctx context.Context, address string) error {
	resp, err := c.sendRequest(ctx, model.HelperCommand{Network: &model.NetworkCommand{Op: "add", Address: address}})
	if err != nil {
		return err
	}
	return resultToError(resp.Result, forwarderrors.ErrNetworkConfig)
}

// RemoveLoopbackAddress uninstalls a loopback alias, retrying transport
// errors up to removeRetryAttempts times with removeRetryDelay spacing
// (spec §4.9). A semantic "not found" response is success.
func (c *Client) RemoveLoopbackAddress(ctx context.Context, address string) error {
	cmd := model.HelperCommand{Network: &model.NetworkCommand{Op: "remove", Address: address}}

	var lastErr error
	for attempt := 1; attempt <= removeRetryAttempts; attempt++ {
		resp, err := c.sendRequest(ctx, cmd)
		if err != nil {
			lastErr = err
			time.Sleep(removeRetryDelay)
			continue
		}

		switch resp.Result.Kind {
		case model.ResultSuccess:
			return nil
		case model.ResultError:
			lower := strings.ToLower(resp.Result.Error)
			if strings.Contains(lower, "not found") || strings.Contains(lower, "no such process") {
				return nil
			}
			return forwarderrors.ErrNetworkConfig
		default:
			lastErr = forwarderrors.ErrHelperTransport
		}
	}

	if lastErr == nil {
		lastErr = forwarderrors.ErrHelperTransport
	}
	return lastErr
}

// AllocateAddress asks the helper for a free pool address for serviceName.
func (c *Client) AllocateAddress(ctx context.Context, serviceName string) (string, error) {
	resp, err := c.sendRequest(ctx, model.HelperCommand{Address: &model.AddressCommand{Op: "allocate", ServiceName: serviceName}})
	if err != nil {
		return "", err
	}
	if resp.Result.Kind == model.ResultError {
		return "", forwarderrors.ErrAddressPool
	}
	return resp.Result.String, nil
}

// ReleaseAddress returns an allocated address to the pool.
func (c *Client) ReleaseAddress(ctx context.Context, address string) error {
	resp, err := c.sendRequest(ctx, model.HelperCommand{Address: &model.AddressCommand{Op: "release", Address: address}})
	if err != nil {
		return err
	}
	return resultToError(resp.Result, forwarderrors.ErrAddressPool)
}

// AddHostEntry registers a hosts-file entry keyed by id.
func (c *Client) AddHostEntry(ctx context.Context, id string, entry model.HostEntry) error {
	resp, err := c.sendRequest(ctx, model.HelperCommand{Host: &model.HostCommand{Op: "add", ID: id, Entry: &entry}})
	if err != nil {
		return err
	}
	return resultToError(resp.Result, forwarderrors.ErrNetworkConfig)
}

// RemoveHostEntry removes a hosts-file entry by id.
func (c *Client) RemoveHostEntry(ctx context.Context, id string) error {
	resp, err := c.sendRequest(ctx, model.HelperCommand{Host: &model.HostCommand{Op: "remove", ID: id}})
	if err != nil {
		return err
	}
	return resultToError(resp.Result, forwarderrors.ErrNetworkConfig)
}

// ListHostEntries returns every hosts-file entry the helper currently manages.
func (c *Client) ListHostEntries(ctx context.Context) ([]model.HostEntryRecord, error) {
	resp, err := c.sendRequest(ctx, model.HelperCommand{Host: &model.HostCommand{Op: "list"}})
	if err != nil {
		return nil, err
	}
	if resp.Result.Kind == model.ResultError {
		return nil, forwarderrors.ErrNetworkConfig
	}
	return resp.Result.HostEntries, nil
}

// RemoveAllHostEntries removes every hosts-file entry the helper manages.
func (c *Client) RemoveAllHostEntries(ctx context.Context) error {
	resp, err := c.sendRequest(ctx, model.HelperCommand{Host: &model.HostCommand{Op: "remove_all"}})
	if err != nil {
		return err
	}
	return resultToError(resp.Result, forwarderrors.ErrNetworkConfig)
}

// StopService asks the helper to exit.
func (c *Client) StopService(ctx context.Context) error {
	resp, err := c.sendRequest(ctx, model.HelperCommand{Service: &model.ServiceCommand{Op: "stop"}})
	if err != nil {
		return err
	}
	return resultToError(resp.Result, forwarderrors.ErrHelperTransport)
}

func resultToError(result model.HelperResult, semanticErr error) error {
	switch result.Kind {
	case model.ResultSuccess, model.ResultStringSuccess, model.ResultListSuccess,
		model.ResultAllocationsSuccess, model.ResultHostEntriesSuccess:
		return nil
	case model.ResultError:
		return semanticErr
	default:
		return forwarderrors.ErrHelperTransport
	}
}
