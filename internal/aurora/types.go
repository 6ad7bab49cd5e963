package aurora

import (
	"time"

	"github.com/grayline/grayline/internal/raster"
)

// Dataset represents one OVATION aurora probability grid from a source.
type Dataset struct {
	Source          string
	FetchedAt       time.Time
	ObservationTime time.Time
	ForecastTime    time.Time
	Samples         []raster.Sample
}
