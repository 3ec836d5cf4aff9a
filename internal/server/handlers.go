package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"vanillasomethin/sitecms/internal/publish"
	"vanillasomethin/sitecms/internal/utils"
	"vanillasomethin/sitecms/pkg/contentproto"

	"github.com/golang/glog"
)

// maxPublishBody bounds the size of a publish request
const maxPublishBody = 8 << 20

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Errorf("Error encoding response: %v", err)
	}
}

// writeError writes the {error} body used by every API failure
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, contentproto.ErrorResponse{Error: message})
}

// writePublishError maps a publish failure to its status and message
func writePublishError(w http.ResponseWriter, err error) {
	status := publish.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		glog.Errorf("Content API error (%d): %v", status, err)
	}
	writeError(w, status, err.Error())
}

// decodePublishRequest reads the request body. The configuration is checked
// first so a misconfigured server says so regardless of the body.
func (s *SiteServer) decodePublishRequest(w http.ResponseWriter, r *http.Request) (contentproto.PublishRequest, error) {
	var req contentproto.PublishRequest
	if err := s.publisher.Ready(); err != nil {
		return req, err
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPublishBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, &publish.ValidationError{Reason: publish.ReasonMalformed, Message: fmt.Sprintf("Request body exceeds %d bytes.", maxPublishBody)}
		}
		return req, &publish.ValidationError{Reason: publish.ReasonMalformed, Message: "Unable to read request body."}
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, &publish.ValidationError{Reason: publish.ReasonMalformed, Message: "Invalid JSON payload."}
	}
	return req, nil
}

// publishContext bounds one publish, including both store calls
func (s *SiteServer) publishContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.config.Publish.Timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.config.Publish.Timeout)
}

// handlePublish commits a new version of the content document
func (s *SiteServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodePublishRequest(w, r)
	if err != nil {
		writePublishError(w, err)
		return
	}

	ctx, cancel := s.publishContext(r)
	defer cancel()

	result, err := s.publisher.Publish(ctx, req)
	if err != nil {
		writePublishError(w, err)
		return
	}

	s.hub.Update(result.Content)
	s.triggerDeploy()

	writeJSON(w, http.StatusOK, contentproto.PublishResponse{Status: contentproto.StatusOK})
}

// handleGetContent returns the committed document and its revision marker
func (s *SiteServer) handleGetContent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.publishContext(r)
	defer cancel()

	blob, err := s.publisher.Current(ctx)
	if err != nil {
		writePublishError(w, err)
		return
	}

	if !json.Valid(blob.Content) {
		writeError(w, http.StatusBadGateway, "Committed content is not valid JSON.")
		return
	}

	writeJSON(w, http.StatusOK, contentproto.ContentResponse{
		Path:    blob.Path,
		Branch:  blob.Branch,
		SHA:     blob.SHA,
		Content: json.RawMessage(blob.Content),
	})
}

// handleDiff previews the operations a publish would apply
func (s *SiteServer) handleDiff(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodePublishRequest(w, r)
	if err != nil {
		writePublishError(w, err)
		return
	}

	ctx, cancel := s.publishContext(r)
	defer cancel()

	preview, err := s.publisher.Preview(ctx, req)
	if err != nil {
		writePublishError(w, err)
		return
	}

	operations := preview.Operations
	if operations == nil {
		operations = []contentproto.Operation{}
	}
	writeJSON(w, http.StatusOK, contentproto.DiffResponse{
		SHA:        preview.Current.SHA,
		Changed:    len(operations) > 0,
		Operations: operations,
	})
}

// handleHealth answers liveness probes
func (s *SiteServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, contentproto.PublishResponse{Status: contentproto.StatusOK})
}

// publicDocument returns the latest known public copy of the content document
func (s *SiteServer) publicDocument() ([]byte, string, error) {
	if data, hash, ok := s.hub.Current(); ok {
		return data, hash, nil
	}
	data, err := os.ReadFile(s.documentPath)
	if err != nil {
		return nil, "", err
	}
	data, hash := s.hub.Seed(data)
	return data, hash, nil
}

// handleContentDocument serves the public content document. With
// "Subscribe: true" the response stays open and carries every new version.
func (s *SiteServer) handleContentDocument(w http.ResponseWriter, r *http.Request) {
	data, hash, err := s.publicDocument()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.handleNotFound(w, r)
			return
		}
		http.Error(w, fmt.Sprintf("Error reading content: %v", err), http.StatusInternalServerError)
		return
	}

	// Set common headers
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Range-Request-Allow-Units", "json")

	if r.Header.Get("Subscribe") != "true" {
		w.Header().Set("Version", utils.QuoteVersion(hash))
		w.Header().Set("Cache-Control", "no-cache")
		if r.Method == http.MethodHead {
			return
		}
		w.Write(data)
		return
	}

	// Ensure we can flush the response
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set headers for streaming
	w.Header().Set("Subscribe", "true")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(209) // 209 is the status code for a successful subscription

	subID, err := s.hub.Subscribe(w, flusher)
	if err != nil {
		glog.V(1).Infof("Subscription setup failed: %v", err)
		return
	}

	// Keep the connection open until the client disconnects
	<-r.Context().Done()
	s.hub.RemoveSubscription(subID)
}

// cors adds CORS headers and answers preflight requests
func (s *SiteServer) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.config.CORS.AllowOrigins)
		w.Header().Set("Access-Control-Allow-Methods", s.config.CORS.AllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", s.config.CORS.AllowHeaders)
		w.Header().Set("Access-Control-Expose-Headers", "Version, Parents, Subscribe")

		if s.config.CORS.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.config.CORS.MaxAge))

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
