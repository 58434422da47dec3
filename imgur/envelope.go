package imgur

import (
	"bytes"
	"encoding/json"
	"net/http"

	"imgurfetch/internal"
)

// checkEnvelope validates a JSON response body. An object carrying a boolean
// "success" and an integer "status" of 400 or more is an application error,
// whatever the HTTP status was. httpStatus only matters when the body has no
// such envelope.
func checkEnvelope(httpStatus int, body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		if httpStatus >= http.StatusBadRequest {
			return internal.NewApplicationError(httpStatus, "")
		}
		return internal.NewDecodingError("response", err)
	}

	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return statusError(httpStatus)
	}

	_, hasSuccess := obj["success"].(bool)
	number, hasStatus := obj["status"].(json.Number)
	if !hasSuccess || !hasStatus {
		return statusError(httpStatus)
	}
	status, err := number.Int64()
	if err != nil {
		return statusError(httpStatus)
	}
	if status >= http.StatusBadRequest {
		return internal.NewApplicationError(int(status), envelopeMessage(obj))
	}
	return nil
}

func statusError(httpStatus int) error {
	if httpStatus >= http.StatusBadRequest {
		return internal.NewApplicationError(httpStatus, "")
	}
	return nil
}

// envelopeMessage extracts data.error. Some endpoints nest the text one level
// deeper as data.error.message.
func envelopeMessage(obj map[string]interface{}) string {
	data, ok := obj["data"].(map[string]interface{})
	if !ok {
		return ""
	}
	switch e := data["error"].(type) {
	case string:
		return e
	case map[string]interface{}:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	return ""
}

// DecodeData unmarshals the "data" member of a response payload into v.
// An empty payload leaves v untouched.
func DecodeData(payload []byte, v interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return internal.NewDecodingError("response", err)
	}
	if len(wrapper.Data) == 0 {
		return internal.NewDecodingError("response", errMissingData)
	}
	if err := json.Unmarshal(wrapper.Data, v); err != nil {
		return internal.NewDecodingError("response data", err)
	}
	return nil
}

type envelopeError string

func (e envelopeError) Error() string { return string(e) }

const errMissingData = envelopeError(`payload has no "data" member`)
