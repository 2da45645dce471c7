// Package master implements the control-plane request/reply endpoint every
// worker process dials to join the cluster, fetch the completed hash ring,
// announce completion, and rendezvous around async-phase boundaries --
// generalized from husky's ZMQ-ROUTER master (master/master.cpp) onto a
// plain one-request-per-call fasthttp listener.
/*
 * Copyright (c) 2024, NVIDIA CORPORATION. All rights reserved.
 */
package master

import "github.com/bspgraph/bspgraph/wire"

// Message type constants. The numeric values are preserved from the
// original's core/constants.hpp rather than renumbered, since a future
// wire-compatible client has no other way to identify these messages.
const (
	TypeJoin          uint32 = 0x47d69ed5
	TypeExit          uint32 = 0x47d79fd5
	TypeGetHashRing   uint32 = 0x48d693d5
	TypeStopAsyncReq  uint32 = 0xf89d74b4
	TypeStopAsyncYes  uint32 = 0x09b8ab2b
	TypeStartAsyncReq uint32 = 0x302233da
	TypeStartAsyncYes uint32 = 0x47d67f00
)

// controlPath is the single fasthttp route the master listens on; the
// message type inside the frame disambiguates the request, the same way a
// ROUTER socket's payload did rather than the URL.
const controlPath = "/v1/master/control"

// encodeFrame lays out a request or reply exactly as spec.md §6 describes
// the wire: an empty leading field (the ROUTER-socket identity slot the
// original multiplexed replies on, kept as a reserved placeholder here
// since fasthttp already gives each request its own response), a u32 message
// type, and the body as a nested stream.
func encodeFrame(msgType uint32, body *wire.BinStream) *wire.BinStream {
	if body == nil {
		body = wire.New()
	}
	f := wire.New()
	f.PushString("")
	f.PushUint32(msgType)
	f.PushStream(body)
	return f
}

func decodeFrame(f *wire.BinStream) (msgType uint32, body *wire.BinStream) {
	_ = f.PopString()
	msgType = f.PopUint32()
	body = f.PopStream()
	return msgType, body
}
