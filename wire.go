// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// Envelope keys.
const (
	keyMethod = "method"
	keyParams = "params"
	keyID     = "id"
	keyResult = "result"
	keyError  = "error"
)

// defaultMaxFrameSize bounds a single line on the wire.
const defaultMaxFrameSize = 64 * 1024 * 1024

var errNotObject = errors.New("frame is not a JSON object")

// Request is the envelope a client sends.
type Request struct {
	Method string `json:"method"`
	ID     uint64 `json:"id"`
	Params []any  `json:"params"`
}

// Response is the part of the reply envelope a client looks at.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// envelope is one decoded request object. Keys the protocol does not inspect
// are kept verbatim and echoed in the response.
type envelope map[string]json.RawMessage

// decodeFrame decodes one line. Malformed JSON is returned as the decoder's
// error; well-formed JSON that is not an object yields errNotObject.
func decodeFrame(line []byte) (envelope, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errNotObject
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return env, nil
}

// isCall reports whether all of method, params and id are present.
func (e envelope) isCall() bool {
	_, hasMethod := e[keyMethod]
	_, hasParams := e[keyParams]
	_, hasID := e[keyID]
	return hasMethod && hasParams && hasID
}

// take removes method and params and decodes them.
func (e envelope) take() (string, Params, error) {
	rawMethod, rawParams := e[keyMethod], e[keyParams]
	delete(e, keyMethod)
	delete(e, keyParams)

	var method string
	if err := json.Unmarshal(rawMethod, &method); err != nil {
		return "", nil, newError(KindInvalidRequest, err, "method must be a string, got %s", rawMethod)
	}

	dec := json.NewDecoder(bytes.NewReader(rawParams))
	dec.UseNumber()
	var params []any
	if err := dec.Decode(&params); err != nil || bytes.Equal(bytes.TrimSpace(rawParams), []byte("null")) {
		return method, nil, newError(KindInvalidParams, err, "params must be a list, got %s", rawParams)
	}
	return method, Params(params), nil
}

// setResult stores the outcome of one exchange. A result that cannot be
// encoded is reported as an error instead.
func (e envelope) setResult(result any, err error) {
	e[keyResult] = json.RawMessage("null")
	e[keyError] = json.RawMessage("null")
	if err == nil {
		data, merr := json.Marshal(result)
		if merr == nil {
			e[keyResult] = data
			return
		}
		err = merr
	}
	msg, _ := json.Marshal(wireError(err))
	e[keyError] = msg
}

// invalid marks the envelope as not being a call.
func (e envelope) invalid() {
	orig, _ := json.Marshal(map[string]json.RawMessage(e))
	e[keyResult] = json.RawMessage("null")
	msg, _ := json.Marshal("not valid msg " + string(orig))
	e[keyError] = msg
}

// writeFrame writes v as one line.
func writeFrame(w io.Writer, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
