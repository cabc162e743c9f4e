// Package model defines the wire types exchanged with the Sodular API.
package model

import "time"

// Document is the envelope every Sodular record shares.
// Data carries the record's own fields; the rest is bookkeeping the server owns.
type Document[T any] struct {
	UID       string `json:"uid"`
	Data      T      `json:"data"`
	CreatedAt int64  `json:"createdAt,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
	CreatedBy string `json:"createdBy,omitempty"`
	UpdatedBy string `json:"updatedBy,omitempty"`
	IsDeleted bool   `json:"isDeleted,omitempty"`
	DeletedAt int64  `json:"deletedAt,omitempty"`
	DeletedBy string `json:"deletedBy,omitempty"`
}

// Created returns the creation time, or the zero time if the server sent none.
func (d Document[T]) Created() time.Time {
	return fromMillis(d.CreatedAt)
}

// Updated returns the last update time, or the zero time if the server sent none.
func (d Document[T]) Updated() time.Time {
	return fromMillis(d.UpdatedAt)
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// List is the shape returned by every list endpoint.
type List[T any] struct {
	List  []T `json:"list"`
	Total int `json:"total"`
}

// Envelope is the uniform {error?, data?} response body.
type Envelope[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error,omitempty"`
}
