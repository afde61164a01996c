// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package apiserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/juju/errors"

	"github.com/juju/documentstore/domain"
	"github.com/juju/documentstore/services"
)

// documentPayload is the front-end shape accepted on document
// registration.
type documentPayload struct {
	Data       string         `json:"data"`
	Assets     []assetPayload `json:"assets"`
	Renditions []assetPayload `json:"renditions"`
}

type assetPayload struct {
	AssetID      string `json:"asset_id"`
	AssetURL     string `json:"asset_url"`
	RenditionID  string `json:"rendition_id"`
	RenditionURL string `json:"rendition_url"`
}

func (p documentPayload) assets() []services.Asset {
	out := make([]services.Asset, 0, len(p.Assets))
	for _, a := range p.Assets {
		out = append(out, services.Asset{ID: a.AssetID, URL: a.AssetURL})
	}
	return out
}

func (p documentPayload) renditions() []services.Asset {
	out := make([]services.Asset, 0, len(p.Renditions))
	for _, a := range p.Renditions {
		id, url := a.RenditionID, a.RenditionURL
		if id == "" {
			id, url = a.AssetID, a.AssetURL
		}
		out = append(out, services.Asset{ID: id, URL: url})
	}
	return out
}

func (s *Server) handlePutDocument(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	id := mux.Vars(r)["id"]
	var payload documentPayload
	if err := decodeJSON(r, &payload); err != nil {
		return nil, 0, errors.Trace(err)
	}
	err := svc.RegisterDocument(id, payload.Data, payload.assets(), payload.renditions())
	if errors.Is(err, errors.AlreadyExists) {
		// The document is known; treat the request as a new version.
		err = svc.RegisterDocumentVersion(id, payload.Data, payload.assets(), payload.renditions())
	}
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusNoContent, nil
}

// versionSelector extracts the ?version= and ?when= query selectors.
func versionSelector(r *http.Request) (index int, versionAt string, err error) {
	q := r.URL.Query()
	versionAt = q.Get("when")
	if raw := q.Get("version"); raw != "" {
		index, err = strconv.Atoi(raw)
		if err != nil {
			return 0, "", errors.BadRequestf("version %q not a number", raw)
		}
	}
	return index, versionAt, nil
}

// asGone remaps reads of deleted documents from conflict to gone.
func asGone(err error) error {
	if errors.Is(err, domain.AlreadyDeleted) {
		return fmt.Errorf("%s%w", err.Error(), errors.Hide(goneRead))
	}
	return errors.Trace(err)
}

func (s *Server) handleGetDocument(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	id := mux.Vars(r)["id"]
	index, versionAt, err := versionSelector(r)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	if wantsXML(r) {
		data, err := svc.FetchDocumentData(id, index, versionAt)
		if err != nil {
			return nil, 0, asGone(err)
		}
		http.Redirect(w, r, data.Data, http.StatusFound)
		return nil, http.StatusFound, nil
	}
	manifest, err := svc.FetchDocumentManifest(id)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	return manifest, http.StatusOK, nil
}

// wantsXML reports whether the client asked for the front-matter XML
// rather than the manifest.
func wantsXML(r *http.Request) bool {
	for _, accept := range r.Header["Accept"] {
		for _, part := range strings.Split(accept, ",") {
			media := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
			if media == "text/xml" || media == "application/xml" {
				return true
			}
		}
	}
	return false
}

func (s *Server) handleDeleteDocument(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	if err := svc.DeleteDocument(mux.Vars(r)["id"]); err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusNoContent, nil
}

func (s *Server) handleGetManifest(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	manifest, err := svc.FetchDocumentManifest(mux.Vars(r)["id"])
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	return manifest, http.StatusOK, nil
}

func (s *Server) handleGetAssets(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	id := mux.Vars(r)["id"]
	index, versionAt, err := versionSelector(r)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	assets, err := svc.FetchAssetsList(id, index, versionAt)
	if err != nil {
		return nil, 0, asGone(err)
	}
	return map[string]interface{}{"assets": assets}, http.StatusOK, nil
}

func (s *Server) handlePutAsset(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	vars := mux.Vars(r)
	var payload struct {
		AssetURL string `json:"asset_url"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		return nil, 0, errors.Trace(err)
	}
	if err := svc.RegisterAssetVersion(vars["id"], vars["slot"], payload.AssetURL); err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusNoContent, nil
}

func (s *Server) handleGetRenditions(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	id := mux.Vars(r)["id"]
	index, versionAt, err := versionSelector(r)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	renditions, err := svc.FetchDocumentRenditions(id, index, versionAt)
	if err != nil {
		return nil, 0, asGone(err)
	}
	return map[string]interface{}{"renditions": renditions}, http.StatusOK, nil
}

func (s *Server) handlePutRendition(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	vars := mux.Vars(r)
	var payload struct {
		RenditionURL string `json:"rendition_url"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		return nil, 0, errors.Trace(err)
	}
	if err := svc.RegisterRenditionVersion(vars["id"], vars["slot"], payload.RenditionURL); err != nil {
		return nil, 0, errors.Trace(err)
	}
	return nil, http.StatusNoContent, nil
}
