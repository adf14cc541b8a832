// Package proofstore persists accepted proof images. The default store
// inlines the image as a data URI; S3Store writes it to an S3-compatible
// bucket and returns the object's URL.
package proofstore

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/ahrav/questlog/internal/ports"
)

// ErrEmptyImage is returned when asked to store an image with no bytes.
var ErrEmptyImage = errors.New("proofstore: empty image")

// DataURIStore encodes proofs inline as base64 data URIs, so the proof
// travels with the task row and needs no external storage.
type DataURIStore struct{}

// NewDataURIStore returns a DataURIStore.
func NewDataURIStore() DataURIStore { return DataURIStore{} }

// Put implements ports.ProofStore. The key is ignored.
func (DataURIStore) Put(_ context.Context, _ string, img ports.Image) (string, error) {
	if len(img.Data) == 0 {
		return "", ErrEmptyImage
	}
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data), nil
}

var _ ports.ProofStore = DataURIStore{}
