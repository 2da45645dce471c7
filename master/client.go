package master

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/bspgraph/bspgraph/hashring"
	"github.com/bspgraph/bspgraph/wire"
)

// Client is a worker process's handle to the control plane: every call is
// one request/reply round trip against the configured master_host:master_port,
// over one shared fasthttp.Client that keeps its connections for reuse
// (control-plane traffic is low-frequency: join once, a handful of exits,
// occasional async-phase transitions).
type Client struct {
	http *fasthttp.Client
	addr string
}

// NewClient returns a Client targeting the master listening at addr
// (host:port).
func NewClient(addr string) *Client {
	return &Client{http: &fasthttp.Client{MaxConnsPerHost: 8}, addr: addr}
}

func (c *Client) call(msgType uint32, body *wire.BinStream) (*wire.BinStream, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(fmt.Sprintf("http://%s%s", c.addr, controlPath))
	req.SetBody(encodeFrame(msgType, body).Bytes())

	// No timeout, matching spec.md §5's "no general cancellation" for the
	// core's blocking calls -- TYPE_GET_HASH_RING in particular may wait
	// on every other worker's own TYPE_JOIN.
	// Wrapped with a stack trace at the point the round trip actually
	// failed -- by the time a Join/GetHashRing error reaches an operator's
	// log, the call stack that issued it is long gone otherwise.
	if err := c.http.Do(req, resp); err != nil {
		return nil, errors.WithStack(err)
	}
	respBytes := make([]byte, len(resp.Body()))
	copy(respBytes, resp.Body())
	_, replyBody := decodeFrame(wire.FromBytes(respBytes))
	return replyBody, nil
}

// Join announces workerID's presence to the master.
func (c *Client) Join(workerID int) error {
	body := wire.New()
	body.PushUint32(uint32(workerID))
	_, err := c.call(TypeJoin, body)
	return err
}

// GetHashRing blocks until every expected worker has joined and returns
// the authoritative ring.
func (c *Client) GetHashRing() (*hashring.HashRing, error) {
	replyBody, err := c.call(TypeGetHashRing, wire.New())
	if err != nil {
		return nil, err
	}
	ring := hashring.New()
	ring.UnmarshalBinStream(replyBody)
	return ring, nil
}

// Exit announces workerID's (running on hostname) completion.
func (c *Client) Exit(hostname string, workerID int) error {
	body := wire.New()
	body.PushString(hostname)
	body.PushUint32(uint32(workerID))
	_, err := c.call(TypeExit, body)
	return err
}

// StopAsync blocks until every process's delegate has called StopAsync,
// then all return together.
func (c *Client) StopAsync() error {
	_, err := c.call(TypeStopAsyncReq, wire.New())
	return err
}

// StartAsync blocks until every process's delegate has called StartAsync,
// then all return together.
func (c *Client) StartAsync() error {
	_, err := c.call(TypeStartAsyncReq, wire.New())
	return err
}
