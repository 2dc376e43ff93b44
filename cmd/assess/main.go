// Command assess prints the hazard risk report for one coordinate.
//
//	assess -lat 41.0082 -lng 28.9784
//	assess -lat 41.0082 -lng 28.9784 -json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kjstillabower/hazard-risk-service/internal/app"
	"github.com/kjstillabower/hazard-risk-service/internal/cache"
	"github.com/kjstillabower/hazard-risk-service/internal/config"
	"github.com/kjstillabower/hazard-risk-service/internal/models"
	"github.com/kjstillabower/hazard-risk-service/internal/observability"
	"github.com/kjstillabower/hazard-risk-service/internal/report"
	"github.com/kjstillabower/hazard-risk-service/internal/service"
	"github.com/kjstillabower/hazard-risk-service/internal/validation"
)

type assessor interface {
	GetAssessment(ctx context.Context, c models.Coordinate) (models.Assessment, error)
}

// assessorFactory builds the assessor and a cleanup func.
type assessorFactory func(logger *zap.Logger, useCache bool) (assessor, func(), error)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, logger, newAssessor)
	stop()
	_ = logger.Sync()
	os.Exit(code)
}

func newAssessor(logger *zap.Logger, useCache bool) (assessor, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	upstreams, err := app.NewUpstreams(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {}
	var c cache.Cache = cache.NewInMemoryCache()
	if useCache {
		shared, mc, err := app.NewCache(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		c = shared
		if mc != nil {
			cleanup = func() { _ = mc.Close() }
		}
	}
	return service.NewAssessmentService(upstreams.Sources, c, cfg.CacheTTL, cfg.CoalesceTimeout, nil), cleanup, nil
}

// run returns the process exit code: 0 on success, 1 when the assessment
// failed, 2 on usage errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, logger *zap.Logger, factory assessorFactory) int {
	fs := flag.NewFlagSet("assess", flag.ContinueOnError)
	fs.SetOutput(stderr)
	lat := fs.String("lat", "", "latitude in decimal degrees")
	lng := fs.String("lng", "", "longitude in decimal degrees")
	asJSON := fs.Bool("json", false, "print the assessment and report as JSON")
	useCache := fs.Bool("cache", false, "use the configured cache backend instead of a private in-memory cache")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	coord, err := validation.ParseCoordinate(*lat, *lng)
	if err != nil {
		fmt.Fprintf(stderr, "assess: %v\n", err)
		fs.Usage()
		return 2
	}

	a, cleanup, err := factory(logger, *useCache)
	if err != nil {
		fmt.Fprintf(stderr, "assess: %v\n", err)
		return 1
	}
	defer cleanup()

	assessment, err := a.GetAssessment(observability.WithLogger(ctx, logger), coord)
	if err != nil {
		fmt.Fprintf(stderr, "assess: %v\n", err)
		if errors.Is(err, context.Canceled) {
			return 130
		}
		return 1
	}

	rep := report.Build(assessment)
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(struct {
			Assessment models.Assessment `json:"assessment"`
			Report     report.Report     `json:"report"`
		}{assessment, rep})
	} else {
		err = report.WriteText(stdout, rep)
	}
	if err != nil {
		fmt.Fprintf(stderr, "assess: write: %v\n", err)
		return 1
	}
	if assessment.Status == models.StatusUnavailable {
		return 1
	}
	return 0
}
