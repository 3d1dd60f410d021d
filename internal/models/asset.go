package models

import (
	"io"
	"strings"
	"time"
)

// Asset is a binary blob selected by the user for an image message
type Asset struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// IsImage reports whether the asset has an image/* content type
func (a Asset) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.ContentType), "image/")
}

// UploadResult is what the asset store returns once an upload completes
type UploadResult struct {
	FinalURL        string
	StorageLocation string
}

// EntryFailure is a failure report for a single entry (PostgreSQL)
type EntryFailure struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	EntryID   string    `json:"entry_id" gorm:"size:64;index"`
	Stage     string    `json:"stage" gorm:"size:20;index"` // create, upload, finalize
	Transient bool      `json:"transient"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// SendMessageRequest defines the request body for posting a text message
type SendMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}
