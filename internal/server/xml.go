// Package server implements the device facing CSIP-AUS HTTP API.
package server

import (
	"encoding/xml"
	"io"
	"net/http"

	"go.uber.org/zap"

	"gridserve/internal/sep2"
)

// maxBodyBytes bounds device request bodies. Mirror reading posts are the
// largest legitimate payloads and stay well under this.
const maxBodyBytes = 1 << 20

func writeXML(w http.ResponseWriter, r *http.Request, status int, resource any, logger *zap.Logger) {
	body, err := xml.Marshal(resource)
	if err != nil {
		logger.Error("xml marshal failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", sep2.ContentTypeXML)
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	w.Write([]byte(xml.Header))
	w.Write(body)
}

func readXML(w http.ResponseWriter, r *http.Request, into any, logger *zap.Logger) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeSepError(w, r, http.StatusBadRequest, "unreadable request body", logger)
		return false
	}
	if err := xml.Unmarshal(body, into); err != nil {
		writeSepError(w, r, http.StatusBadRequest, "malformed XML", logger)
		return false
	}
	return true
}

// peekXML reads the bounded request body without committing to a root
// element, for endpoints that accept more than one document shape.
func peekXML(w http.ResponseWriter, r *http.Request, logger *zap.Logger) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeSepError(w, r, http.StatusBadRequest, "unreadable request body", logger)
		return nil, false
	}
	return body, true
}

// unmarshalFirst decodes body into the first target whose root element
// matches.
func unmarshalFirst(body []byte, targets ...any) error {
	var err error
	for _, t := range targets {
		if err = xml.Unmarshal(body, t); err == nil {
			return nil
		}
	}
	return err
}

func writeSepError(w http.ResponseWriter, r *http.Request, status int, message string, logger *zap.Logger) {
	writeXML(w, r, status, &sep2.Error{ReasonCode: 0, Message: message}, logger)
}
