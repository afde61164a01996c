// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package apiserver

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/juju/errors"

	"github.com/juju/documentstore/domain"
	"github.com/juju/documentstore/services"
)

func (s *Server) handlePutJournal(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	id := mux.Vars(r)["id"]
	var metadata map[string]interface{}
	if err := decodeJSON(r, &metadata); err != nil {
		return nil, 0, errors.Trace(err)
	}
	if err := svc.CreateJournal(id, metadata); err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusCreated, nil
}

func (s *Server) handleGetJournal(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	manifest, err := svc.FetchJournal(mux.Vars(r)["id"])
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	return manifest, http.StatusOK, nil
}

func (s *Server) handlePatchJournalMetadata(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	id := mux.Vars(r)["id"]
	var metadata map[string]interface{}
	if err := decodeJSON(r, &metadata); err != nil {
		return nil, 0, errors.Trace(err)
	}
	if err := svc.UpdateJournalMetadata(id, metadata); err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusNoContent, nil
}

// indexSelector extracts the optional ?index= insertion position.
func indexSelector(r *http.Request) (int, bool, error) {
	raw := r.URL.Query().Get("index")
	if raw == "" {
		return 0, false, nil
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, errors.BadRequestf("index %q not a number", raw)
	}
	return index, true, nil
}

func (s *Server) handlePutJournalIssue(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	vars := mux.Vars(r)
	issue := domain.Ref{ID: vars["bundle_id"]}
	index, positioned, err := indexSelector(r)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	if positioned {
		err = svc.InsertIssueToJournal(vars["id"], index, issue)
	} else {
		err = svc.AddIssueToJournal(vars["id"], issue)
	}
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusNoContent, nil
}

func (s *Server) handleDeleteJournalIssue(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	vars := mux.Vars(r)
	if err := svc.RemoveIssueFromJournal(vars["id"], vars["bundle_id"]); err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusNoContent, nil
}

func (s *Server) handlePutJournalAOP(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	vars := mux.Vars(r)
	if err := svc.SetAheadOfPrintBundleToJournal(vars["id"], vars["bundle_id"]); err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusNoContent, nil
}

func (s *Server) handleDeleteJournalAOP(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	if err := svc.RemoveAheadOfPrintBundleFromJournal(mux.Vars(r)["id"]); err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusNoContent, nil
}

// bundlePayload is the front-end shape accepted on bundle creation.
type bundlePayload struct {
	Docs     []string               `json:"docs"`
	Metadata map[string]interface{} `json:"metadata"`
}

func refs(ids []string) []domain.Ref {
	out := make([]domain.Ref, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Ref{ID: id})
	}
	return out
}

func (s *Server) handlePutBundle(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	id := mux.Vars(r)["id"]
	var payload bundlePayload
	if err := decodeJSON(r, &payload); err != nil {
		return nil, 0, errors.Trace(err)
	}
	if err := svc.CreateDocumentsBundle(id, refs(payload.Docs), payload.Metadata); err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusCreated, nil
}

func (s *Server) handleGetBundle(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	manifest, err := svc.FetchDocumentsBundle(mux.Vars(r)["id"])
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	return manifest, http.StatusOK, nil
}

func (s *Server) handlePatchBundleMetadata(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	id := mux.Vars(r)["id"]
	var metadata map[string]interface{}
	if err := decodeJSON(r, &metadata); err != nil {
		return nil, 0, errors.Trace(err)
	}
	if err := svc.UpdateDocumentsBundleMetadata(id, metadata); err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusNoContent, nil
}

func (s *Server) handlePutBundleDocuments(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	id := mux.Vars(r)["id"]
	var payload struct {
		Docs []string `json:"docs"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		return nil, 0, errors.Trace(err)
	}
	if err := svc.UpdateDocumentsInDocumentsBundle(id, refs(payload.Docs)); err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusNoContent, nil
}

func (s *Server) handlePutBundleDocument(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	vars := mux.Vars(r)
	doc := domain.Ref{ID: vars["doc_id"]}
	index, positioned, err := indexSelector(r)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	if positioned {
		err = svc.InsertDocumentToDocumentsBundle(vars["id"], index, doc)
	} else {
		err = svc.AddDocumentToDocumentsBundle(vars["id"], doc)
	}
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusNoContent, nil
}
