package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// WriteText renders r as a plain-text report, one section per panel.
func WriteText(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	p := &printer{w: tw}

	p.printf("Place: %s\n", r.Place)
	p.printf("Coordinate: %.6f, %.6f\n", r.Coordinate.Lat, r.Coordinate.Lng)
	p.printf("Status: %s\n", r.Status)

	p.printf("\nWeather\n")
	if r.WeatherError != "" {
		p.printf("%s\n", r.WeatherError)
	} else {
		p.printf("DATE\tTEMP (°C)\tCONDITION\tHUMIDITY (%%)\tWIND (kph)\tRAIN (mm)\n")
		for _, d := range r.Weather {
			p.printf("%s\t%g\t%s\t%g\t%g\t%g\n", d.Date, d.TempC, d.Condition, d.HumidityPct, d.WindKph, d.RainMM)
		}
	}

	p.printf("\nRisk\n")
	if r.RiskError != "" {
		p.printf("%s\n", r.RiskError)
	} else {
		p.printf("DATE\tRAIN (mm)\tFLOOD\tHEAVY RAIN\tTSUNAMI\tLANDSLIDE\n")
		for _, d := range r.Risk {
			p.printf("%s\t%g\t%s\t%s\t%s\t%s\n", d.Date, d.RainMM, d.Flood, d.HeavyRain, d.Tsunami, d.Landslide)
		}
	}
	for _, n := range r.Notices {
		p.printf("Note: %s\n", n)
	}

	p.printf("\nElevation\n")
	switch {
	case r.ElevationError != "":
		p.printf("%s\n", r.ElevationError)
	case r.Elevation != "":
		p.printf("%s\n", r.Elevation)
	default:
		p.printf("Elevation: unknown\n")
	}

	p.printf("\nSeismic\n")
	if r.SeismicMessage != "" {
		p.printf("%s\n", r.SeismicMessage)
	} else {
		p.printf("%s\n", r.SeismicHeading)
		for _, eq := range r.Earthquakes {
			p.printf("Location: %s\tMagnitude: %g\tTime: %s\n", eq.Place, eq.Magnitude, eq.Time.Format(time.RFC3339))
		}
	}

	if p.err != nil {
		return p.err
	}
	return tw.Flush()
}

// printer keeps the first write error so callers check once.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
