package protocol

import (
	"strings"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
)

// SplitURI splits "/oic/res?rt=a&if=b" into its path and query items.
func SplitURI(uri string) (string, []string) {
	path, query, _ := strings.Cut(uri, "?")
	if path == "" {
		path = "/"
	}
	var queries []string
	for _, q := range strings.Split(query, "&") {
		if q != "" {
			queries = append(queries, q)
		}
	}
	return path, queries
}

// QueryOptions turns query items into Uri-Query options.
func QueryOptions(queries []string) []message.Option {
	opts := make([]message.Option, 0, len(queries))
	for _, q := range queries {
		opts = append(opts, message.Option{ID: message.URIQuery, Value: []byte(q)})
	}
	return opts
}

// NewRequest builds a request for uri, which may carry a query string.
func NewRequest(code codes.Code, uri string, token message.Token) message.Message {
	path, queries := SplitURI(uri)
	m := message.Message{
		Code:    code,
		Token:   token,
		Options: make(message.Options, 0, 8),
	}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg != "" {
			m.Options = m.Options.Add(message.Option{ID: message.URIPath, Value: []byte(seg)})
		}
	}
	for _, opt := range QueryOptions(queries) {
		m.Options = m.Options.Add(opt)
	}
	return m
}

// SetObserve registers (0) or deregisters (1) an observation on m.
func SetObserve(m *message.Message, register uint32) {
	m.Options = m.Options.Add(uintOption(message.Observe, register))
}

// SetPayload attaches payload with its content format.
func SetPayload(m *message.Message, mt message.MediaType, payload []byte) {
	m.Options = m.Options.Add(uintOption(message.ContentFormat, uint32(mt)))
	m.Payload = payload
}

func uintOption(id message.OptionID, v uint32) message.Option {
	buf := make([]byte, 4)
	n, _ := message.EncodeUint32(buf, v)
	return message.Option{ID: id, Value: buf[:n]}
}

// IsSuccess reports whether code is in the 2.xx class.
func IsSuccess(code codes.Code) bool {
	return code>>5 == 2
}

// Response is a reply or notification reduced to what callers read.
type Response struct {
	Code    codes.Code
	Payload []byte

	// Sequence is the Observe option of a notification.
	Sequence uint32

	format    message.MediaType
	hasFormat bool
}

// NewResponse creates a response carrying a CBOR payload.
func NewResponse(code codes.Code, payload []byte) *Response {
	return &Response{Code: code, Payload: payload, format: message.AppCBOR, hasFormat: true}
}

// FromMessage extracts a Response from a decoded message.
func FromMessage(m message.Message) *Response {
	r := &Response{Code: m.Code, Payload: m.Payload}
	if cf, err := m.Options.ContentFormat(); err == nil {
		r.SetFormat(cf)
	}
	if seq, err := m.Options.Observe(); err == nil {
		r.Sequence = seq
	}
	return r
}

// SetFormat records the content format of the payload.
func (r *Response) SetFormat(mt message.MediaType) {
	r.format = mt
	r.hasFormat = true
}

// CBOR reports whether the payload can be read as CBOR. A missing content
// format is accepted; Mynewt servers often omit it.
func (r *Response) CBOR() bool {
	if !r.hasFormat {
		return true
	}
	return r.format == message.AppCBOR || r.format == message.AppOcfCbor
}
