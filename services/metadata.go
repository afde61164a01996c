// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package services

import (
	"fmt"
	"regexp"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/schema"
)

// SubjectAreas is the fixed vocabulary accepted in a journal's
// subject_areas metadata.
var SubjectAreas = set.NewStrings(
	"Agricultural Sciences",
	"Applied Social Sciences",
	"Biological Sciences",
	"Engineering",
	"Exact and Earth Sciences",
	"Health Sciences",
	"Human Sciences",
	"Linguistics, Letters and Arts",
)

var journalFields = schema.Fields{
	"title":                       schema.String(),
	"mission":                     schema.Any(),
	"title_iso":                   schema.String(),
	"short_title":                 schema.String(),
	"acronym":                     schema.String(),
	"scielo_issn":                 schema.String(),
	"print_issn":                  schema.String(),
	"electronic_issn":             schema.String(),
	"status":                      schema.Any(),
	"subject_areas":               schema.List(schema.String()),
	"sponsors":                    schema.List(schema.String()),
	"subject_categories":          schema.List(schema.String()),
	"online_submission_url":       schema.String(),
	"next_journal":                schema.Any(),
	"previous_journal":            schema.Any(),
	"contact":                     schema.Any(),
	"institution_responsible_for": schema.Any(),
	"logo_url":                    schema.String(),
}

var bundleFields = schema.Fields{
	"publication_year":   schema.Any(),
	"publication_months": schema.Any(),
	"volume":             schema.String(),
	"number":             schema.String(),
	"supplement":         schema.String(),
	"pid":                schema.String(),
	"titles":             schema.Any(),
}

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// coerceFields keeps the keys named in fields, coercing each value with
// its checker; unknown keys are silently dropped so ingestion payloads
// may carry extra fields without failing.
func coerceFields(meta map[string]interface{}, fields schema.Fields) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(meta))
	for key, value := range meta {
		checker, known := fields[key]
		if !known {
			logger.Debugf("dropping unexpected metadata key %q", key)
			continue
		}
		coerced, err := checker.Coerce(value, []string{key})
		if err != nil {
			return nil, errors.NewNotValid(err, fmt.Sprintf("metadata key %q", key))
		}
		out[key] = coerced
	}
	return out, nil
}

// ValidateJournalMetadata filters and validates a journal metadata
// section. Unknown keys are dropped; subject_areas values must come
// from the SubjectAreas vocabulary.
func ValidateJournalMetadata(meta map[string]interface{}) (map[string]interface{}, error) {
	out, err := coerceFields(meta, journalFields)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if areas, ok := out["subject_areas"].([]interface{}); ok {
		for _, area := range areas {
			if name, ok := area.(string); !ok || !SubjectAreas.Contains(name) {
				return nil, errors.NotValidf("subject area %v", area)
			}
		}
	}
	return out, nil
}

// ValidateBundleMetadata filters and validates a documents bundle
// metadata section. publication_year must be a four-digit year and
// publication_months a list of month numbers.
func ValidateBundleMetadata(meta map[string]interface{}) (map[string]interface{}, error) {
	out, err := coerceFields(meta, bundleFields)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if year, ok := out["publication_year"]; ok {
		text := fmt.Sprint(year)
		if !yearPattern.MatchString(text) {
			return nil, errors.NotValidf("publication year %v", year)
		}
		out["publication_year"] = text
	}
	if months, ok := out["publication_months"]; ok {
		list, ok := months.([]interface{})
		if !ok {
			return nil, errors.NotValidf("publication months %v", months)
		}
		normalised := make([]interface{}, 0, len(list))
		for _, raw := range list {
			month, ok := asInt(raw)
			if !ok || month < 1 || month > 12 {
				return nil, errors.NotValidf("publication month %v", raw)
			}
			normalised = append(normalised, month)
		}
		out["publication_months"] = normalised
	}
	return out, nil
}

// asInt accepts the integer spellings JSON and BSON decoding produce.
func asInt(v interface{}) (int, bool) {
	switch v := v.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}
