package queue

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cuemby/dispatchd/pkg/types"
)

// recordVersion is the only version this codec understands. A record
// tagged with any other byte raises ErrUnsupportedRecordVersion.
const recordVersion = 0x01

// Header keys mirroring the HTTP headers a delivery attaches (spec §6);
// stored alongside the body so a recovered record carries everything the
// delivery client needs without re-deriving it from the event.
const (
	headerEventID      = "X-Dream-Event-Id"
	headerEventChannel = "X-Dream-Event-Channel"
	headerEventResource = "X-Dream-Event-Resource"
	headerEventOrigin   = "X-Dream-Event-Origin"
	headerRecipient     = "X-Dream-Event-Recipients"
	headerVia           = "X-Dream-Event-Via"
)

// encodeRecord serializes item per the durable queue record layout:
// version byte, destination URI, location, MIME type, body, then a
// u32 header count followed by that many key/value pairs, then a
// trailing CRC32 (IEEE) over everything preceding it.
func encodeRecord(item types.DispatchItem) []byte {
	var buf bytes.Buffer
	buf.WriteByte(recordVersion)
	writeString(&buf, item.DestinationURI)
	writeString(&buf, item.Location)
	writeString(&buf, item.Event.ContentType)
	writeBytes(&buf, item.Event.Payload)

	headers := eventHeaders(item.Event)
	writeU32(&buf, uint32(len(headers)))
	for _, h := range headers {
		writeString(&buf, h[0])
		writeString(&buf, h[1])
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	writeU32(&buf, sum)
	return buf.Bytes()
}

// decodeRecord parses one record from r. io.EOF (with zero bytes read)
// signals a clean end of segment; any other error (including a short
// read mid-record, or a CRC mismatch) signals a truncated or corrupt
// tail record, which the caller discards without treating it as fatal.
func decodeRecord(r io.Reader) (types.DispatchItem, error) {
	var body bytes.Buffer
	tee := io.TeeReader(r, &body)

	versionByte := make([]byte, 1)
	if _, err := io.ReadFull(r, versionByte); err != nil {
		return types.DispatchItem{}, err
	}
	body.WriteByte(versionByte[0])
	if versionByte[0] != recordVersion {
		return types.DispatchItem{}, types.ErrUnsupportedRecordVersion
	}

	dest, err := readString(tee)
	if err != nil {
		return types.DispatchItem{}, err
	}
	location, err := readString(tee)
	if err != nil {
		return types.DispatchItem{}, err
	}
	mimeType, err := readString(tee)
	if err != nil {
		return types.DispatchItem{}, err
	}
	payload, err := readBytes(tee)
	if err != nil {
		return types.DispatchItem{}, err
	}

	count, err := readU32(tee)
	if err != nil {
		return types.DispatchItem{}, err
	}
	headers := make([][2]string, 0, count)
	for i := uint32(0); i < count; i++ {
		k, err := readString(tee)
		if err != nil {
			return types.DispatchItem{}, err
		}
		v, err := readString(tee)
		if err != nil {
			return types.DispatchItem{}, err
		}
		headers = append(headers, [2]string{k, v})
	}

	wantSum := crc32.ChecksumIEEE(body.Bytes())
	gotSum, err := readU32(r)
	if err != nil {
		return types.DispatchItem{}, err
	}
	if gotSum != wantSum {
		return types.DispatchItem{}, types.ErrMalformedEvent
	}

	event := eventFromHeaders(headers, mimeType, payload)
	return types.DispatchItem{
		DestinationURI: dest,
		Location:       location,
		Event:          event,
	}, nil
}

func eventHeaders(e *types.DispatcherEvent) [][2]string {
	var out [][2]string
	out = append(out, [2]string{headerEventID, e.ID})
	out = append(out, [2]string{headerEventChannel, e.ChannelURI})
	if e.ResourceURI != "" {
		out = append(out, [2]string{headerEventResource, e.ResourceURI})
	}
	for _, o := range e.Origins {
		out = append(out, [2]string{headerEventOrigin, o})
	}
	for _, r := range e.Recipients {
		out = append(out, [2]string{headerRecipient, r})
	}
	for _, v := range e.Via {
		out = append(out, [2]string{headerVia, v})
	}
	return out
}

func eventFromHeaders(headers [][2]string, mimeType string, payload []byte) *types.DispatcherEvent {
	e := &types.DispatcherEvent{ContentType: mimeType, Payload: payload}
	for _, h := range headers {
		switch h[0] {
		case headerEventID:
			e.ID = h[1]
		case headerEventChannel:
			e.ChannelURI = h[1]
		case headerEventResource:
			e.ResourceURI = h[1]
		case headerEventOrigin:
			e.Origins = append(e.Origins, h[1])
		case headerRecipient:
			e.Recipients = append(e.Recipients, h[1])
		case headerVia:
			e.Via = append(e.Via, h[1])
		}
	}
	return e
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeU32(buf, uint32(len(b)))
	buf.Write(b)
}

func readU32(r io.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
