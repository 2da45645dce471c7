package mailbox

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v3"

	"github.com/bspgraph/bspgraph/wire"
)

// Data-plane frame tags, per the control/data-plane external interface:
// a u32 event tag, then payload- or completion-specific fields, all native
// (little-endian) byte order -- the cluster is homogeneous by assumption.
const (
	frameTagPayload           uint32 = 1
	frameTagComplete          uint32 = 2
	frameTagPayloadCompressed uint32 = 3
)

const frameHeaderLen = 4 + 4 + 4 + 4 // event_tag, dst_tid, channel_id, progress

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// writePayloadFrame writes one payload frame: tag, dst_tid, cid, progress,
// u64 length, then length bytes of BinStream content.
func writePayloadFrame(w io.Writer, dstTid, cid, progress uint32, bin *wire.BinStream) error {
	if err := writeU32(w, frameTagPayload); err != nil {
		return err
	}
	if err := writeU32(w, dstTid); err != nil {
		return err
	}
	if err := writeU32(w, cid); err != nil {
		return err
	}
	if err := writeU32(w, progress); err != nil {
		return err
	}
	body := bin.Bytes()
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// writeCompleteFrame writes one completion frame: tag, 0 (dst_tid unused),
// cid, progress, u32 num_sender_processes.
func writeCompleteFrame(w io.Writer, cid, progress uint32, numSenderProcesses int) error {
	if err := writeU32(w, frameTagComplete); err != nil {
		return err
	}
	if err := writeU32(w, 0); err != nil {
		return err
	}
	if err := writeU32(w, cid); err != nil {
		return err
	}
	if err := writeU32(w, progress); err != nil {
		return err
	}
	return writeU32(w, uint32(numSenderProcesses))
}

// writeCompressedPayloadFrame is writePayloadFrame's sibling for a body at
// or above the configured compression threshold: tag, dst_tid, cid,
// progress, u64 original length, u64 compressed length, then the
// lz4-compressed block. Block (not frame) compression, since the original
// length is already carried in the frame header -- lz4's own frame format
// would just duplicate it.
//
// lz4's block API returns n == 0 when body doesn't compress (already dense,
// or too short for the hash table to find a match); ok reports whether a
// compressed frame was actually written, so the caller can fall back to
// writePayloadFrame instead of emitting a zero-length, undecodable block.
func writeCompressedPayloadFrame(w io.Writer, dstTid, cid, progress uint32, body []byte) (ok bool, err error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(body)))
	ht := make([]int, 64<<10)
	n, err := lz4.CompressBlock(body, compressed, ht)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	compressed = compressed[:n]

	if err := writeU32(w, frameTagPayloadCompressed); err != nil {
		return false, err
	}
	if err := writeU32(w, dstTid); err != nil {
		return false, err
	}
	if err := writeU32(w, cid); err != nil {
		return false, err
	}
	if err := writeU32(w, progress); err != nil {
		return false, err
	}

	var lenBuf [16]byte
	binary.LittleEndian.PutUint64(lenBuf[:8], uint64(len(body)))
	binary.LittleEndian.PutUint64(lenBuf[8:], uint64(len(compressed)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return false, err
	}
	if _, err := w.Write(compressed); err != nil {
		return false, err
	}
	return true, nil
}

// readFrame reads one frame and dispatches it to loop. The sender's global
// tid is not on the wire, so payloads are delivered with a source tid of 0;
// callers that need srcTid encode it as part of the BinStream payload
// itself at the channel layer.
func readFrame(r io.Reader, loop *EventLoop) error {
	tag, err := readU32(r)
	if err != nil {
		return err
	}
	dstTid, err := readU32(r)
	if err != nil {
		return err
	}
	cid, err := readU32(r)
	if err != nil {
		return err
	}
	progress, err := readU32(r)
	if err != nil {
		return err
	}

	switch tag {
	case frameTagPayload:
		var lenBuf [8]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return err
		}
		n := binary.LittleEndian.Uint64(lenBuf[:])
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return err
		}
		loop.DeliverInboundPayload(0, dstTid, cid, progress, wire.FromBytes(body))
		return nil

	case frameTagPayloadCompressed:
		var lenBuf [16]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return err
		}
		origLen := binary.LittleEndian.Uint64(lenBuf[:8])
		compLen := binary.LittleEndian.Uint64(lenBuf[8:])
		compressed := make([]byte, compLen)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return err
		}
		body := make([]byte, origLen)
		if _, err := lz4.UncompressBlock(compressed, body); err != nil {
			return err
		}
		loop.DeliverInboundPayload(0, dstTid, cid, progress, wire.FromBytes(body))
		return nil

	case frameTagComplete:
		n, err := readU32(r)
		if err != nil {
			return err
		}
		loop.DeliverInboundComplete(cid, progress, int(n))
		return nil

	default:
		return fmt.Errorf("mailbox: unknown frame tag %d", tag)
	}
}
