/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package upload

import (
	"errors"
	"io"
	"net/http"

	"github.com/acronis/go-blogapi/httpserver/middleware"
	"github.com/acronis/go-blogapi/log"
	"github.com/acronis/go-blogapi/restapi"
)

// FormField is the name of the multipart form field with the file.
const FormField = "image"

// multipartOverhead is added to the file size limit to let boundaries and other form fields through.
const multipartOverhead = 64 * 1024

// Error messages.
const (
	ErrMessageNoFile          = "No file uploaded."
	ErrMessageNotMultipart    = "Request body should be multipart/form-data."
	ErrMessageUnsupportedType = "Only images and PDF documents are allowed."
	ErrMessageEmptyFile       = "Uploaded file is empty."
)

// UploadResponse is a body of the successful upload response.
type UploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// Handler serves file uploads from the FormField multipart field.
type Handler struct {
	store     *Store
	errDomain string
}

// NewHandler creates a new upload Handler.
func NewHandler(store *Store, errDomain string) *Handler {
	return &Handler{store: store, errDomain: errDomain}
}

func (h *Handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	r.Body = http.MaxBytesReader(rw, r.Body, h.store.MaxSize()+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(h.errDomain, restapi.ErrCodeBadRequest, ErrMessageNotMultipart), logger)
		return
	}

	for {
		part, partErr := mr.NextPart()
		if partErr != nil {
			if errors.Is(partErr, io.EOF) {
				restapi.RespondError(rw, http.StatusBadRequest,
					restapi.NewError(h.errDomain, restapi.ErrCodeBadRequest, ErrMessageNoFile), logger)
				return
			}
			var maxBytesErr *http.MaxBytesError
			if errors.As(partErr, &maxBytesErr) {
				h.respondSaveError(rw, partErr, logger)
				return
			}
			restapi.RespondError(rw, http.StatusBadRequest,
				restapi.NewError(h.errDomain, restapi.ErrCodeBadRequest, ErrMessageNotMultipart), logger)
			return
		}
		if part.FormName() != FormField || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		file, saveErr := h.store.Save(part)
		_ = part.Close()
		if saveErr != nil {
			h.respondSaveError(rw, saveErr, logger)
			return
		}
		if logger != nil {
			logger.Info("file uploaded",
				log.String("filename", file.Name), log.String("mime_type", file.MIMEType), log.Int64("size", file.Size))
		}
		restapi.RespondJSON(rw, UploadResponse{
			Message:  "File uploaded successfully",
			Filename: file.Name,
			Path:     file.Path,
		}, logger)
		return
	}
}

func (h *Handler) respondSaveError(rw http.ResponseWriter, err error, logger log.FieldLogger) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, ErrTooLarge) || errors.As(err, &maxBytesErr):
		restapi.RespondMalformedRequestError(rw, h.errDomain,
			restapi.NewTooLargeMalformedRequestError(uint64(h.store.MaxSize())), logger) //nolint:gosec // always positive
	case errors.Is(err, ErrUnsupportedType):
		restapi.RespondError(rw, http.StatusUnsupportedMediaType,
			restapi.NewErrorForHTTPCode(h.errDomain, http.StatusUnsupportedMediaType, ErrMessageUnsupportedType), logger)
	case errors.Is(err, ErrEmptyFile):
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(h.errDomain, restapi.ErrCodeBadRequest, ErrMessageEmptyFile), logger)
	default:
		if logger != nil {
			logger.Error("failed to save uploaded file", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errDomain, logger)
	}
}
