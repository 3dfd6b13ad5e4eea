package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/metrics"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/wqi"
)

const maxJSONBody = 1 << 20

type predictResponse struct {
	wqi.Result
	Tips       []wqi.Tip          `json:"tips"`
	Timestamp  time.Time          `json:"timestamp"`
	Parameters wqi.MeasurementSet `json:"parameters"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) error {
	set, err := decodeMeasurements(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		return badRequest(msgInvalidParameters, err)
	}

	res, tips, err := s.score(set)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, predictResponse{
		Result:     res,
		Tips:       tips,
		Timestamp:  time.Now().UTC(),
		Parameters: set,
	})
	return nil
}

// score validates set, then scores it and derives tips.
func (s *Server) score(set wqi.MeasurementSet) (wqi.Result, []wqi.Tip, error) {
	if len(set) == 0 {
		return wqi.Result{}, nil, wqi.ErrNoParameters
	}
	if err := s.scorer.Schema().ValidateMeasurements(set); err != nil {
		return wqi.Result{}, nil, err
	}
	res, err := s.scorer.Score(set)
	if err != nil {
		return wqi.Result{}, nil, err
	}
	metrics.PredictionsTotal.WithLabelValues(string(res.Label)).Inc()
	return res, s.scorer.Tips(set, res), nil
}

// decodeMeasurements reads a flat {"name": number} object. Nulls are treated
// as absent and names are matched case-insensitively.
func decodeMeasurements(body io.Reader) (wqi.MeasurementSet, error) {
	var raw map[string]*float64
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return wqi.MeasurementSet{}, nil
		}
		return nil, err
	}
	return measurementsFromJSON(raw), nil
}

func measurementsFromJSON(raw map[string]*float64) wqi.MeasurementSet {
	set := make(wqi.MeasurementSet, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		set[strings.ToLower(strings.TrimSpace(k))] = *v
	}
	return set
}
