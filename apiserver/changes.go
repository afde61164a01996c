// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package apiserver

import (
	"net/http"
	"strconv"

	"github.com/juju/errors"

	"github.com/juju/documentstore/services"
	"github.com/juju/documentstore/state"
)

// changesResponse is a page of the change log with the window it was
// cut from, so followers can resume from the last timestamp.
type changesResponse struct {
	Since   string         `json:"since"`
	Limit   int            `json:"limit"`
	Results []state.Change `json:"results"`
}

func (s *Server) handleChanges(svc *services.Services, w http.ResponseWriter, r *http.Request) (interface{}, int, error) {
	q := r.URL.Query()
	since := q.Get("since")
	limit := state.DefaultChangesLimit
	if raw := q.Get("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, 0, errors.BadRequestf("limit %q not a positive number", raw)
		}
	}
	results, err := svc.FetchChanges(since, limit)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	if results == nil {
		results = []state.Change{}
	}
	return changesResponse{Since: since, Limit: limit, Results: results}, http.StatusOK, nil
}
