package handler

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

const multipartMemory = 4 << 20

// uploadRule accepts a file by declared MIME type or by extension.
type uploadRule struct {
	mimeTypes []string
	ext       string
	rejected  string
}

var (
	csvUpload = uploadRule{mimeTypes: []string{"text/csv"}, ext: ".csv", rejected: "Only CSV files are allowed"}
	pdfUpload = uploadRule{mimeTypes: []string{"application/pdf"}, ext: ".pdf", rejected: "Only PDF files are allowed"}

	errNoFile       = domain.NewError(domain.ErrValidation, "No file uploaded")
	errFileTooLarge = domain.NewError(domain.ErrValidation, "File too large")
)

func (u uploadRule) allows(h *multipart.FileHeader) bool {
	if strings.EqualFold(filepath.Ext(h.Filename), u.ext) {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(h.Header.Get("Content-Type"))
	return err == nil && slices.Contains(u.mimeTypes, mediaType)
}

// upload is a single file taken from a multipart request.
type upload struct {
	file   multipart.File
	header *multipart.FileHeader
	form   *multipart.Form
}

// Close releases the file and any temporary files of the form.
func (u *upload) Close() {
	_ = u.file.Close()
	if u.form != nil {
		_ = u.form.RemoveAll()
	}
}

// readUpload extracts the "file" field of a multipart request, enforcing
// the size cap and the rule's type filter.
func readUpload(w http.ResponseWriter, r *http.Request, rule uploadRule, maxSize int64) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errFileTooLarge
		}
		return nil, errNoFile
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		return nil, errNoFile
	}
	u := &upload{file: file, header: header, form: r.MultipartForm}
	if header.Size > maxSize {
		u.Close()
		return nil, errFileTooLarge
	}
	if !rule.allows(header) {
		u.Close()
		return nil, domain.NewError(domain.ErrValidation, rule.rejected)
	}
	return u, nil
}
