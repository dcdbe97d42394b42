package hub

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/jamesprial/srt-streamer-agent/internal/status"
)

// SubprotocolCBOR is the WebSocket subprotocol that selects CBOR frames.
const SubprotocolCBOR = "cbor"

// View selects what a subscriber receives on each push.
type View int

const (
	// ViewNetwork sends the per-interface throughput map.
	ViewNetwork View = iota
	// ViewStatus sends the whole snapshot.
	ViewStatus
)

// ParseView maps a query value to a View. Anything other than "status"
// selects the network view.
func ParseView(s string) View {
	if s == "status" {
		return ViewStatus
	}
	return ViewNetwork
}

func (v View) String() string {
	if v == ViewStatus {
		return "status"
	}
	return "network"
}

func (v View) payload(snap *status.Snapshot) any {
	if v == ViewStatus {
		return snap
	}
	return snap.Interfaces
}

// Codec encodes pushed payloads into WebSocket messages.
type Codec interface {
	Encode(v any) ([]byte, error)
	// MessageType is websocket.TextMessage or websocket.BinaryMessage.
	MessageType() int
}

type jsonCodec struct{}

func (jsonCodec) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) MessageType() int { return websocket.TextMessage }

// cborCodec encodes with Core Deterministic Encoding. Text marshalers
// (states, AP status) encode as CBOR text strings so both codecs carry the
// same wire values.
type cborCodec struct {
	mode cbor.EncMode
}

func (c cborCodec) Encode(v any) ([]byte, error) { return c.mode.Marshal(v) }

func (cborCodec) MessageType() int { return websocket.BinaryMessage }

var (
	// JSON is the default codec.
	JSON Codec = jsonCodec{}
	// CBOR is used when the subscriber negotiated SubprotocolCBOR.
	CBOR Codec = newCBORCodec()
)

func newCBORCodec() cborCodec {
	opts := cbor.CoreDetEncOptions()
	opts.TextMarshaler = cbor.TextMarshalerTextString
	opts.Time = cbor.TimeRFC3339Nano
	mode, err := opts.EncMode()
	if err != nil {
		panic("hub: CBOR encoder initialization failed: " + err.Error())
	}
	return cborCodec{mode: mode}
}

// CodecFor returns the codec matching a negotiated subprotocol.
func CodecFor(subprotocol string) Codec {
	if subprotocol == SubprotocolCBOR {
		return CBOR
	}
	return JSON
}
