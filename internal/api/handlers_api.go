package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/htmlutil"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/ingest"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/models"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/wqi"
)

var validate = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type createRecordRequest struct {
	Area       string              `json:"area" validate:"required,max=200"`
	Latitude   *float64            `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude  *float64            `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Date       string              `json:"date" validate:"required"`
	Parameters map[string]*float64 `json:"parameters"`
}

type createRecordResponse struct {
	Record RecordView `json:"record"`
	Result wqi.Result `json:"result"`
	Tips   []wqi.Tip  `json:"tips"`
}

// handleCreateRecord stores a single manually entered sample.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) error {
	var req createRecordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		return badRequest(msgInvalidData, err)
	}
	req.Area = htmlutil.PlainText(req.Area)
	if err := validate.Struct(req); err != nil {
		return invalidRequest(err)
	}
	sampled, ok := ingest.ParseDate(req.Date)
	if !ok {
		return &apiError{
			status: http.StatusBadRequest,
			body: errorResponse{
				Error:   msgInvalidData,
				Details: []wqi.FieldError{{Field: ingest.ColumnDate, Message: ingest.MsgInvalidDate}},
			},
		}
	}

	set := measurementsFromJSON(req.Parameters)
	res, tips, err := s.score(set)
	if err != nil {
		return err
	}

	area, err := s.store.GetOrCreateArea(r.Context(), req.Area, req.Latitude, req.Longitude)
	if err != nil {
		return err
	}
	rec := &models.Record{
		AreaID:       area.ID,
		AreaName:     area.Name,
		SampledAt:    sampled,
		Measurements: models.MeasurementsFromSet(set),
		Source:       models.SourceManual,
	}
	rec.ApplyResult(res)
	if err := s.store.InsertRecord(r.Context(), rec); err != nil {
		return err
	}

	writeJSON(w, http.StatusCreated, createRecordResponse{
		Record: newRecordView(*rec),
		Result: res,
		Tips:   tips,
	})
	return nil
}

func invalidRequest(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return badRequest(msgInvalidData, err)
	}
	details := make([]wqi.FieldError, len(verrs))
	for i, fe := range verrs {
		msg := "Is invalid"
		switch fe.Tag() {
		case "required":
			msg = "Is required"
		case "gte", "lte":
			msg = "Is out of range"
		case "max":
			msg = "Is too long"
		}
		details[i] = wqi.FieldError{Field: fe.Field(), Message: msg}
	}
	return &apiError{status: http.StatusBadRequest, body: errorResponse{Error: msgInvalidData, Details: details}, cause: err}
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) error {
	filter, err := recordFilter(r)
	if err != nil {
		return err
	}
	if filter.AreaID, err = queryID(r, "area"); err != nil {
		return err
	}

	records, err := s.store.ListRecords(r.Context(), filter)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newRecordViews(records))
	return nil
}

func (s *Server) handleListAreas(w http.ResponseWriter, r *http.Request) error {
	areas, err := s.store.ListAreas(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newAreaViews(areas))
	return nil
}

func (s *Server) handleGetArea(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	area, err := s.store.GetArea(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newAreaView(*area))
	return nil
}

func (s *Server) handleAreaRecords(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if _, err := s.store.GetArea(r.Context(), id); err != nil {
		return err
	}

	filter, err := recordFilter(r)
	if err != nil {
		return err
	}
	filter.AreaID = id

	records, err := s.store.ListRecords(r.Context(), filter)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newRecordViews(records))
	return nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) error {
	d, err := s.store.Dashboard(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newDashboardView(d))
	return nil
}

// recordFilter reads label, upload, since, until and limit from the query.
func recordFilter(r *http.Request) (models.RecordFilter, error) {
	q := r.URL.Query()
	f := models.RecordFilter{
		Label:    q.Get("label"),
		UploadID: q.Get("upload"),
	}

	var err error
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	if f.Since, err = queryDate(r, "since"); err != nil {
		return f, err
	}
	if f.Until, err = queryDate(r, "until"); err != nil {
		return f, err
	}
	return f, nil
}

func invalidQuery(name string, cause error) *apiError {
	return badRequest("Invalid query parameter: "+name, cause)
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, invalidQuery(name, err)
	}
	return v, nil
}

func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, invalidQuery(name, err)
	}
	return v, nil
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, ok := ingest.ParseDate(raw)
	if !ok {
		return time.Time{}, invalidQuery(name, nil)
	}
	return t, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("Invalid id", err)
	}
	return id, nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
