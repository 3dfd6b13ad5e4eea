package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/ingest"
)

const defaultUploadName = "upload.json"

func (s *Server) handleParseUpload(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	table, err := readUploadTable(r)
	if err != nil {
		return err
	}

	res, err := s.validator.Validate(table)
	if err != nil {
		return err
	}

	zap.L().Debug("uploads: parsed",
		zap.Int("rows", res.TotalRows),
		zap.Int("errors", res.ErrorCount),
		zap.Int("dropped", table.Dropped),
	)
	writeJSON(w, http.StatusOK, res)
	return nil
}

type tableRequest struct {
	Headers []string     `json:"headers"`
	Rows    []ingest.Row `json:"rows"`
}

// readUploadTable accepts either a multipart "file" field or a JSON body of
// already decoded headers and rows.
func readUploadTable(r *http.Request) (*ingest.Table, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		var req tableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, badRequest(msgInvalidData, err)
		}
		return tableFromRequest(req)

	case "multipart/form-data":
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, badRequest(msgNoFile, err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, err
		}
		return ingest.DecodeTable(header.Filename, data)

	default:
		return nil, badRequest(msgNoFile, nil)
	}
}

func tableFromRequest(req tableRequest) (*ingest.Table, error) {
	if len(req.Headers) == 0 && len(req.Rows) == 0 {
		return nil, ingest.ErrEmptyFile
	}

	headers := make([]string, 0, len(req.Headers))
	for _, h := range req.Headers {
		headers = append(headers, normalizeName(h))
	}
	if len(headers) == 0 {
		seen := map[string]bool{}
		for _, row := range req.Rows {
			for k := range row {
				if !seen[k] {
					seen[k] = true
					headers = append(headers, k)
				}
			}
		}
		sort.Strings(headers)
	}

	rows := req.Rows
	if rows == nil {
		rows = []ingest.Row{}
	}
	return &ingest.Table{Headers: headers, Rows: rows}, nil
}

type processRequest struct {
	Filename string       `json:"filename"`
	Rows     []ingest.Row `json:"rows"`
}

func (s *Server) handleProcessUpload(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes))
	if err != nil {
		return err
	}

	var req processRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Rows == nil {
		return badRequest(msgInvalidData, err)
	}
	if req.Filename == "" {
		req.Filename = defaultUploadName
	}

	res, err := s.importer.Process(r.Context(), req.Filename, req.Rows, body)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) error {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return err
	}
	uploads, err := s.store.ListUploads(r.Context(), limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newUploadViews(uploads))
	return nil
}
