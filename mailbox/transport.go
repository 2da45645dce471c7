// Transport glue: one TCP endpoint per process (CentralReceiver), modeled
// as a fasthttp server accepting one long-lived streaming POST per peer,
// mirroring transport.NewObjStream/HandleObjStream's "never-ending HTTP
// body as a byte pipe" idiom instead of a bespoke framed-TCP listener.
/*
 * Copyright (c) 2024, NVIDIA CORPORATION. All rights reserved.
 */
package mailbox

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bspgraph/bspgraph/cmn/nlog"
	"github.com/bspgraph/bspgraph/wire"
	"github.com/valyala/fasthttp"
)

const mailboxStreamPath = "/v1/mailbox/stream"

// CentralReceiver is the per-process listening endpoint: it owns a single
// fasthttp.Server on the configured comm_port and forwards every frame it
// reads off any peer's stream to the EventLoop as an inbound event.
type CentralReceiver struct {
	loop   *EventLoop
	server *fasthttp.Server
	addr   string
}

// NewCentralReceiver builds (without starting) a receiver bound to addr
// (host:port) that hands decoded frames to loop.
func NewCentralReceiver(addr string, loop *EventLoop) *CentralReceiver {
	cr := &CentralReceiver{loop: loop, addr: addr}
	cr.server = &fasthttp.Server{
		Handler:           cr.handle,
		StreamRequestBody: true,
		Name:              "bspgraph-mailbox",
	}
	return cr
}

// ListenAndServe blocks serving inbound peer streams until the process
// exits or the listener errs. Bind failure is an irrecoverable startup
// error, per the engine's error-handling design.
func (cr *CentralReceiver) ListenAndServe() error {
	if err := cr.server.ListenAndServe(cr.addr); err != nil {
		nlog.Fatalf("mailbox: central receiver failed to bind %s: %v", cr.addr, err)
	}
	return nil
}

func (cr *CentralReceiver) handle(ctx *fasthttp.RequestCtx) {
	if string(ctx.Path()) != mailboxStreamPath {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	body := ctx.RequestBodyStream()
	for {
		if err := readFrame(body, cr.loop); err != nil {
			if err != io.EOF {
				nlog.Warningf("mailbox: peer stream error: %v", err)
			}
			return
		}
	}
}

// Shutdown stops accepting new peer streams.
func (cr *CentralReceiver) Shutdown() error { return cr.server.Shutdown() }

// HTTPTransport dials one long-lived streaming POST per peer process and
// implements the EventLoop's Transport interface over it. Each peer's
// outbound frames are written into an io.Pipe whose reader is the
// request's (unbounded, chunked) body stream -- the same "push bytes
// whenever, the HTTP layer just carries them" shape as
// transport.bundle.streamBundle.
type HTTPTransport struct {
	client     *fasthttp.Client
	peerAddrOf func(pid int) string

	// compressionMinSize is the payload size, in bytes, at or above which
	// SendPayload lz4-compresses the frame instead of sending it raw.
	// Zero (the NewHTTPTransport default) disables compression.
	compressionMinSize int64

	mu    sync.Mutex
	peers map[int]*peerStream
}

type peerStream struct {
	mu       sync.Mutex
	pw       *io.PipeWriter
	lastUsed time.Time
}

// NewHTTPTransport builds a transport resolving peer process ids to
// host:port via peerAddrOf (normally backed by winfo.WorkerInfo.Host plus
// the configured comm_port).
func NewHTTPTransport(peerAddrOf func(pid int) string) *HTTPTransport {
	return &HTTPTransport{
		client:     &fasthttp.Client{MaxConnsPerHost: 4, ReadTimeout: 0, WriteTimeout: 0},
		peerAddrOf: peerAddrOf,
		peers:      map[int]*peerStream{},
	}
}

func (t *HTTPTransport) streamFor(pid int) *peerStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ps, ok := t.peers[pid]; ok {
		return ps
	}
	pr, pw := io.Pipe()
	ps := &peerStream{pw: pw, lastUsed: time.Now()}
	t.peers[pid] = ps

	addr := t.peerAddrOf(pid)
	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.Header.SetMethod(fasthttp.MethodPost)
		req.SetRequestURI(fmt.Sprintf("http://%s%s", addr, mailboxStreamPath))
		req.SetBodyStream(pr, -1)

		if err := t.client.Do(req, resp); err != nil {
			nlog.Fatalf("mailbox: irrecoverable stream error to proc %d (%s): %v", pid, addr, err)
		}
	}()
	return ps
}

// SetCompressionMinSize enables lz4 compression for any payload at or above
// minSize bytes. A value <= 0 disables compression (the default).
func (t *HTTPTransport) SetCompressionMinSize(minSize int64) { t.compressionMinSize = minSize }

func (t *HTTPTransport) SendPayload(peerPid int, dstTid, cid, progress uint32, bin *wire.BinStream) error {
	ps := t.streamFor(peerPid)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.lastUsed = time.Now()

	body := bin.Bytes()
	if t.compressionMinSize > 0 && int64(len(body)) >= t.compressionMinSize {
		ok, err := writeCompressedPayloadFrame(ps.pw, dstTid, cid, progress, body)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// body didn't compress (lz4 returned 0): fall through to raw framing.
	}
	return writePayloadFrame(ps.pw, dstTid, cid, progress, bin)
}

func (t *HTTPTransport) SendComplete(peerPid int, cid, progress uint32, numSenderProcesses int) error {
	ps := t.streamFor(peerPid)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.lastUsed = time.Now()
	return writeCompleteFrame(ps.pw, cid, progress, numSenderProcesses)
}

// SweepIdle closes and forgets every peer stream that has not carried a
// frame in maxIdle, so a worker that talked to many peers early on (a wide
// shuffle, say) doesn't keep that many outbound connections open for the
// rest of the run. The next send to an evicted peer simply redials, the
// same as the very first send ever did. Intended to be registered as a
// periodic housekeeping job rather than called directly.
func (t *HTTPTransport) SweepIdle(maxIdle time.Duration) (closed int) {
	now := time.Now()

	t.mu.Lock()
	var stale []*peerStream
	for pid, ps := range t.peers {
		ps.mu.Lock()
		idle := now.Sub(ps.lastUsed)
		ps.mu.Unlock()
		if idle >= maxIdle {
			stale = append(stale, ps)
			delete(t.peers, pid)
		}
	}
	t.mu.Unlock()

	for _, ps := range stale {
		ps.mu.Lock()
		ps.pw.Close()
		ps.mu.Unlock()
	}
	return len(stale)
}

// dialTimeout is not referenced by the transport: streamFor issues the
// stream request with no time bound, on its connect phase or otherwise.
const dialTimeout = 10 * time.Second
