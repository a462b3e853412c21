package costco

import (
	"github.com/Ropaxyz/CostcoUKTracker/lib/telemetry"
)

var tracer = telemetry.Tracer("costcotracker.lib.scrapers.costco")
