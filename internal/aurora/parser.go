package aurora

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/grayline/grayline/internal/raster"
)

// ovationPayload mirrors the SWPC OVATION JSON document. Each coordinate is
// a [longitude, latitude, probability] triple with longitude in [0, 360)
// and probability in [0, 100].
type ovationPayload struct {
	ObservationTime string      `json:"Observation Time"`
	ForecastTime    string      `json:"Forecast Time"`
	Coordinates     [][]float64 `json:"coordinates"`
}

// Parse reads an OVATION aurora JSON document from r and returns its grid
// samples plus the embedded timestamps. Malformed triples are skipped with a
// warning log; range filtering of coordinates is left to the compositor,
// which drops out-of-range cells sample by sample.
func Parse(r io.Reader, logger *slog.Logger) (*Dataset, error) {
	var payload ovationPayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding aurora data: %w", err)
	}

	samples := make([]raster.Sample, 0, len(payload.Coordinates))
	var skipped int
	for i, triple := range payload.Coordinates {
		if len(triple) != 3 {
			skipped++
			if skipped <= 3 {
				logger.Warn("skipping malformed aurora triple", "index", i, "arity", len(triple))
			}
			continue
		}
		samples = append(samples, raster.Sample{
			LonDeg: triple[0],
			LatDeg: triple[1],
			Value:  triple[2],
		})
	}
	if skipped > 0 {
		logger.Warn("aurora document contained malformed triples", "skipped", skipped, "kept", len(samples))
	}

	ds := &Dataset{Samples: samples}
	if t, err := time.Parse(time.RFC3339, payload.ObservationTime); err == nil {
		ds.ObservationTime = t
	} else if payload.ObservationTime != "" {
		logger.Warn("unparseable observation time", "value", payload.ObservationTime)
	}
	if t, err := time.Parse(time.RFC3339, payload.ForecastTime); err == nil {
		ds.ForecastTime = t
	} else if payload.ForecastTime != "" {
		logger.Warn("unparseable forecast time", "value", payload.ForecastTime)
	}

	return ds, nil
}
