package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type jsonResponse struct {
	status int
	body   []byte
}

// JsonResponseWithData is used for structured JSON responses carrying data.
type JsonResponseWithData struct {
	Status  int         `json:"status"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func NewJsonResponseWithData(status int, code, message string, data interface{}) *JsonResponseWithData {
	return &JsonResponseWithData{Status: status, Code: code, Message: message, Data: data}
}

var apiJsonDefaultHeaders = map[string]string{
	"Content-Type":           "application/json; charset=utf-8",
	"X-Content-Type-Options": "nosniff",
	"Cache-Control":          "no-store, no-cache, must-revalidate",
	"X-Frame-Options":        "DENY",
}

func setHeaders(w http.ResponseWriter, headers map[string]string) {
	for key, value := range headers {
		w.Header()[key] = []string{value}
	}
}

// Standard response codes.
const (
	CodeOkEventAccepted = "ok_event_accepted"

	CodeErrorForbidden                 = "forbidden"
	CodeErrorInvalidPayloadContentType = "invalid_payload_content_type"
	CodeErrorInvalidBase64Payload      = "invalid_base64_payload"
	CodeErrorInvalidMetadata           = "invalid_metadata"
	CodeErrorInvalidLabels             = "invalid_labels"
	CodeErrorConflict                  = "conflict"
	CodeErrorInvalidRequest            = "invalid_request"
	CodeErrorNoAuthHeader              = "no_auth_header"
	CodeErrorInvalidTokenFormat        = "invalid_token_format"
	CodeErrorInternal                  = "internal_error"
)

const shortFormat = `{"status":%d,"code":"%s","message":"%s"}`

// precomputeResponse runs at init time: the JSON body is marshaled once and
// stored as []byte, so request handling never re-marshals a fixed response.
func precomputeResponse(status int, code, message string) jsonResponse {
	body := fmt.Sprintf(shortFormat, status, code, message)
	return jsonResponse{status: status, body: []byte(body)}
}

var (
	errorForbidden                 = precomputeResponse(http.StatusForbidden, CodeErrorForbidden, "Caller lacks the required role, or the application secret is unknown or has been revoked")
	errorInvalidPayloadContentType = precomputeResponse(http.StatusBadRequest, CodeErrorInvalidPayloadContentType, "payload_content_type is not registered")
	errorInvalidBase64Payload      = precomputeResponse(http.StatusBadRequest, CodeErrorInvalidBase64Payload, "payload is not valid base64")
	errorInvalidMetadata           = precomputeResponse(http.StatusBadRequest, CodeErrorInvalidMetadata, "metadata must be a JSON object or absent")
	errorInvalidLabels             = precomputeResponse(http.StatusBadRequest, CodeErrorInvalidLabels, "labels must be a JSON object")
	errorConflict                  = precomputeResponse(http.StatusConflict, CodeErrorConflict, "Event already exists for this application")
	errorInvalidRequest            = precomputeResponse(http.StatusBadRequest, CodeErrorInvalidRequest, "The request body could not be decoded")
	errorNoAuthHeader              = precomputeResponse(http.StatusUnauthorized, CodeErrorNoAuthHeader, "Authorization header is required")
	errorInvalidTokenFormat        = precomputeResponse(http.StatusUnauthorized, CodeErrorInvalidTokenFormat, "Invalid authorization token format")
	errorInternal                  = precomputeResponse(http.StatusInternalServerError, CodeErrorInternal, "Internal server error")
)

func writeJsonOk(w http.ResponseWriter, resp jsonResponse) {
	setHeaders(w, apiJsonDefaultHeaders)
	w.WriteHeader(resp.status)
	w.Write(resp.body)
}

func writeJsonWithData(w http.ResponseWriter, resp JsonResponseWithData) {
	setHeaders(w, apiJsonDefaultHeaders)
	w.WriteHeader(resp.Status)
	json.NewEncoder(w).Encode(resp)
}

func writeJsonError(w http.ResponseWriter, resp jsonResponse) {
	setHeaders(w, apiJsonDefaultHeaders)
	w.WriteHeader(resp.status)
	w.Write(resp.body)
}

// writeIngestError maps an *IngestError to its precomputed response.
func writeIngestError(w http.ResponseWriter, err *IngestError) {
	switch err.Kind {
	case ErrorKindForbidden:
		writeJsonError(w, errorForbidden)
	case ErrorKindInvalidPayloadContentType:
		writeJsonError(w, errorInvalidPayloadContentType)
	case ErrorKindInvalidBase64Payload:
		writeJsonError(w, errorInvalidBase64Payload)
	case ErrorKindInvalidMetadata:
		writeJsonError(w, errorInvalidMetadata)
	case ErrorKindInvalidLabels:
		writeJsonError(w, errorInvalidLabels)
	case ErrorKindConflict:
		writeJsonError(w, errorConflict)
	default:
		writeJsonError(w, errorInternal)
	}
}

// writeEventAccepted writes the 201 response body for a newly ingested event.
func writeEventAccepted(w http.ResponseWriter, created *EventCreated) {
	resp := NewJsonResponseWithData(http.StatusCreated, CodeOkEventAccepted, "Event accepted", created)
	writeJsonWithData(w, *resp)
}
