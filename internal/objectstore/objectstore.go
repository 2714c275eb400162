// Package objectstore keeps generated invoice PDFs.
//
// GCSStore uploads to a Google Cloud Storage bucket; LocalStore writes files to a
// directory and is meant for development and tests. Both implement invoice.ObjectStore.
package objectstore

import (
	"errors"
	"regexp"
	"strings"
)

// ErrEmptyObject is returned when asked to upload no bytes.
var ErrEmptyObject = errors.New("refusing to store empty object")

var unsafeName = regexp.MustCompile(`[^0-9A-Za-z._-]+`)

// objectName returns the file name an invoice PDF is stored under.
func objectName(invoiceNumber string) string {
	name := unsafeName.ReplaceAllString(strings.TrimSpace(invoiceNumber), "_")
	if name == "" {
		name = "invoice"
	}
	return name + ".pdf"
}
