// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package apiserver is the HTTP translator over the services facade:
// handlers decode JSON payloads, call one use case, and map error
// kinds to status codes. No domain decision lives here.
package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/juju/documentstore/domain"
	"github.com/juju/documentstore/services"
	"github.com/juju/documentstore/state"
	"github.com/juju/documentstore/version"
)

var logger = loggo.GetLogger("kernel.apiserver")

// goneRead marks a data read against a deleted document: unlike a
// write conflict it maps to 410.
const goneRead = errors.ConstError("gone")

// Config holds the server dependencies.
type Config struct {
	// NewServices returns a request-scoped facade and its release
	// function. The mongostate adapter copies its session here.
	NewServices func() (*services.Services, func())

	// Metrics instruments handlers when set.
	Metrics *Metrics
}

// Validate returns an error if the server cannot be built.
func (config Config) Validate() error {
	if config.NewServices == nil {
		return errors.NotValidf("nil NewServices")
	}
	return nil
}

// Server routes the REST surface of the document store.
type Server struct {
	config Config
	router *mux.Router
}

// NewServer builds the router.
func NewServer(config Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	s := &Server{config: config, router: mux.NewRouter()}

	s.route("GET", "/", "root", s.handleRoot)
	s.route("GET", "/changes", "changes", s.handleChanges)

	s.route("PUT", "/documents/{id}", "document-put", s.handlePutDocument)
	s.route("GET", "/documents/{id}", "document-get", s.handleGetDocument)
	s.route("DELETE", "/documents/{id}", "document-delete", s.handleDeleteDocument)
	s.route("GET", "/documents/{id}/manifest", "document-manifest", s.handleGetManifest)
	s.route("GET", "/documents/{id}/assets", "document-assets", s.handleGetAssets)
	s.route("PUT", "/documents/{id}/assets/{slot}", "asset-put", s.handlePutAsset)
	s.route("GET", "/documents/{id}/renditions", "document-renditions", s.handleGetRenditions)
	s.route("PUT", "/documents/{id}/renditions/{slot}", "rendition-put", s.handlePutRendition)

	s.route("PUT", "/journals/{id}", "journal-put", s.handlePutJournal)
	s.route("GET", "/journals/{id}", "journal-get", s.handleGetJournal)
	s.route("PATCH", "/journals/{id}/metadata", "journal-metadata", s.handlePatchJournalMetadata)
	s.route("PUT", "/journals/{id}/issues/{bundle_id}", "journal-issue-put", s.handlePutJournalIssue)
	s.route("DELETE", "/journals/{id}/issues/{bundle_id}", "journal-issue-delete", s.handleDeleteJournalIssue)
	s.route("PUT", "/journals/{id}/aop/{bundle_id}", "journal-aop-put", s.handlePutJournalAOP)
	s.route("DELETE", "/journals/{id}/aop", "journal-aop-delete", s.handleDeleteJournalAOP)

	s.route("PUT", "/bundles/{id}", "bundle-put", s.handlePutBundle)
	s.route("GET", "/bundles/{id}", "bundle-get", s.handleGetBundle)
	s.route("PATCH", "/bundles/{id}/metadata", "bundle-metadata", s.handlePatchBundleMetadata)
	s.route("PUT", "/bundles/{id}/documents", "bundle-documents-put", s.handlePutBundleDocuments)
	s.route("PUT", "/bundles/{id}/documents/{doc_id}", "bundle-document-put", s.handlePutBundleDocument)

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handlerFunc is one use-case translation: it returns the response
// body (nil for no content) and status, or an error for the central
// responder to map.
type handlerFunc func(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error)

func (s *Server) route(method, path, name string, fn handlerFunc) {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc, release := s.config.NewServices()
		defer release()
		body, status, err := fn(svc, w, r)
		if err != nil {
			s.sendError(w, r, err)
			return
		}
		if status == http.StatusFound {
			// fn already issued the redirect.
			return
		}
		sendStatusAndJSON(w, status, body)
	})
	if s.config.Metrics != nil {
		h = s.config.Metrics.instrument(name, h)
	}
	s.router.Handle(path, h).Methods(method)
}

// errorStatus maps an error kind to its HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, goneRead):
		return http.StatusGone
	case errors.Is(err, errors.NotFound),
		errors.Is(err, domain.UnknownReference):
		return http.StatusNotFound
	case errors.Is(err, errors.AlreadyExists),
		errors.Is(err, domain.DuplicateReference),
		errors.Is(err, domain.AlreadyDeleted):
		return http.StatusConflict
	case errors.Is(err, errors.NotValid),
		errors.Is(err, errors.BadRequest),
		errors.Is(err, domain.UnknownSlot):
		return http.StatusBadRequest
	case errors.Is(err, state.RetryExhausted),
		errors.Is(err, state.ChangeLogAppendFailed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		logger.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	sendStatusAndJSON(w, status, map[string]string{
		"message": errors.Cause(err).Error(),
	})
}

func sendStatusAndJSON(w http.ResponseWriter, status int, body interface{}) {
	if body == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("cannot write response body: %v", err)
	}
}

// decodeJSON reads the request body into out, reporting malformed
// payloads as BadRequest.
func decodeJSON(r *http.Request, out interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return errors.BadRequestf("cannot decode request body: %v", err)
	}
	return nil
}

func (s *Server) handleRoot(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	return map[string]string{
		"name":    version.Name,
		"version": version.Current,
	}, http.StatusOK, nil
}
