package domain

import (
	"time"
)

// Paste is an envelope held by the self-hosted provider. Envelope is only
// populated after the at-rest blob has been opened.
type Paste struct {
	ID                string    `json:"id"`
	Envelope          string    `json:"-"`
	SealedBlob        []byte    `json:"-"`
	WrappedDEK        []byte    `json:"-"`
	DeletionTokenHash string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	Views             int       `json:"views"`
	ClientIPHash      string    `json:"-"`
}

type CreateParams struct {
	Envelope     string
	Duration     time.Duration
	ClientIPHash string
}

// PasteBlob is the plaintext sealed under a paste's DEK.
type PasteBlob struct {
	Envelope  string    `json:"envelope"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int       `json:"version"`
}

const PasteBlobVersion = 1

func NewPasteBlob(envelope string, createdAt, expiresAt time.Time) *PasteBlob {
	return &PasteBlob{
		Envelope:  envelope,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		Version:   PasteBlobVersion,
	}
}
