package export

import (
	"encoding/json"
	"os"
	"time"
)

type jsonDocument struct {
	Metadata jsonMetadata `json:"metadata"`
	Samples  []jsonSample `json:"samples"`
}

type jsonMetadata struct {
	SessionID     string    `json:"session_id"`
	Instrument    string    `json:"instrument,omitempty"`
	Started       time.Time `json:"started"`
	StoppedBy     string    `json:"stopped_by"`
	Voltage       float64   `json:"voltage"`
	Current       float64   `json:"current"`
	Mode          string    `json:"mode"`
	Threshold     float64   `json:"threshold"`
	StopCondition string    `json:"stop_condition"`
	IntervalMS    int64     `json:"interval_ms"`
	Anode         string    `json:"anode,omitempty"`
	Cathode       string    `json:"cathode,omitempty"`
	Electrolyte   string    `json:"electrolyte,omitempty"`
	Molarity      float64   `json:"molarity,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

type jsonSample struct {
	Timestamp  time.Time `json:"timestamp"`
	Elapsed    float64   `json:"elapsed_s"`
	Voltage    float64   `json:"voltage"`
	Current    float64   `json:"current"`
	Power      float64   `json:"power"`
	Resistance *float64  `json:"resistance,omitempty"`
}

func writeJSON(path string, req Request) error {
	cfg := req.Config

	doc := jsonDocument{
		Metadata: jsonMetadata{
			SessionID:     req.SessionID,
			Instrument:    req.Identity,
			Started:       req.Started,
			StoppedBy:     string(req.StoppedBy),
			Voltage:       cfg.Voltage,
			Current:       cfg.Current,
			Mode:          string(cfg.Mode),
			Threshold:     cfg.Threshold,
			StopCondition: string(cfg.Direction),
			IntervalMS:    cfg.Interval.Milliseconds(),
			Anode:         cfg.Cell.Anode,
			Cathode:       cfg.Cell.Cathode,
			Electrolyte:   cfg.Cell.Electrolyte,
			Molarity:      cfg.Cell.Molarity,
			Notes:         cfg.Notes,
		},
		Samples: make([]jsonSample, 0, len(req.Samples)),
	}

	for _, s := range req.Samples {
		js := jsonSample{
			Timestamp: s.Timestamp,
			Elapsed:   s.Elapsed.Seconds(),
			Voltage:   s.Voltage,
			Current:   s.Current,
			Power:     s.Power(),
		}

		if r, ok := s.Resistance(); ok {
			js.Resistance = &r
		}

		doc.Samples = append(doc.Samples, js)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	if err := enc.Encode(doc); err != nil {
		return err
	}

	return f.Close()
}
