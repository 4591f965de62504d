/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package testmodels holds document fixtures shared by backend and store tests.
package testmodels

import (
	"github.com/go-openapi/strfmt"
	"github.com/goccy/go-json"
)

// RatingSystemCollection is the collection fixtures are stored in.
const RatingSystemCollection = "RatingSystems"

type RatingSystem struct {

	// Timestamp when the rating system was created.
	// Required: true
	// Format: date-time
	CreatedAt strfmt.DateTime `json:"createdAt"`

	// A description of the rating system.
	Description string `json:"description,omitempty"`

	// Unique identifier for the rating system. Mirrors the document reference.
	// Required: true
	ID string `json:"reference"`

	// Name of the rating system.
	// Required: true
	Name string `json:"name"`

	// Number of rated players.
	Players int `json:"players"`

	// site Url
	// Format: uri
	SiteURL strfmt.URI `json:"siteUrl,omitempty"`

	// Timestamp when the rating system was last updated.
	// Format: date-time
	UpdatedAt strfmt.DateTime `json:"updatedAt"`
}

// NewRatingSystem returns a fixture created and updated at ct.
func NewRatingSystem(id, name string, ct strfmt.DateTime) *RatingSystem {
	return &RatingSystem{
		ID:          id,
		Name:        name,
		Description: "This is a test rating system for " + name,
		CreatedAt:   ct,
		UpdatedAt:   ct,
	}
}

// Document encodes the fixture the way documents are stored: a JSON object
// without the reference field.
func (r *RatingSystem) Document() (map[string]any, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	delete(doc, "reference")
	return doc, nil
}
