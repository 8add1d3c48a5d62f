package config

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/pipeline"
	"github.com/Veraticus/cobertura/internal/reclass"
	"github.com/Veraticus/cobertura/internal/zonal"
)

// DefaultAreaDivisor converts square meters to hectares.
const DefaultAreaDivisor = 10000

// PipelineSettings is the run configuration read from viper.
type PipelineSettings struct {
	Range            *zonal.YearRange
	Table            reclass.Table
	TransitionLabels model.ClassLabels
	ReducedLabels    model.ClassLabels
	OutputDir        string
	MetricsFile      string
	PixelArea        float64
	AreaDivisor      float64
	StartYear        int
	Workers          int
	PreserveNoData   bool
}

// LoadPipelineConfig reads the reclass, classes, stats and pipeline sections.
func LoadPipelineConfig(v *viper.Viper) (PipelineSettings, error) {
	s := PipelineSettings{
		Table:            reclass.DefaultTable(),
		TransitionLabels: model.DefaultTransitionLabels(),
		ReducedLabels:    model.DefaultReducedLabels(),
		OutputDir:        ExpandPath(v.GetString("pipeline.output_dir")),
		MetricsFile:      ExpandPath(v.GetString("pipeline.metrics_file")),
		PixelArea:        v.GetFloat64("pipeline.pixel_area"),
		AreaDivisor:      DefaultAreaDivisor,
		StartYear:        v.GetInt("pipeline.start_year"),
		Workers:          v.GetInt("pipeline.workers"),
		PreserveNoData:   v.GetBool("reclass.preserve_nodata"),
	}

	if raw := v.GetStringMapString("reclass.table"); len(raw) > 0 {
		table, err := reclass.ParseTable(raw)
		if err != nil {
			return s, err
		}
		s.Table = table
	}

	if d := v.GetFloat64("pipeline.pixel_area_unit_divisor"); d != 0 {
		if d < 0 {
			return s, common.InvalidConfig("pipeline.pixel_area_unit_divisor", "must be positive")
		}
		s.AreaDivisor = d
	}
	if s.PixelArea < 0 {
		return s, common.InvalidConfig("pipeline.pixel_area", "must be positive")
	}
	if s.Workers < 0 {
		return s, common.InvalidConfig("pipeline.workers", "cannot be negative")
	}

	for key, labels := range map[string]*model.ClassLabels{
		"classes.transition": &s.TransitionLabels,
		"classes.reduced":    &s.ReducedLabels,
	} {
		raw := v.GetStringMapString(key)
		if len(raw) == 0 {
			continue
		}
		parsed, err := parseLabels(key, raw)
		if err != nil {
			return s, err
		}
		*labels = parsed
	}

	if v.IsSet("stats.from") || v.IsSet("stats.to") {
		r := zonal.YearRange{Start: math.MinInt, End: math.MaxInt}
		if v.IsSet("stats.from") {
			r.Start = v.GetInt("stats.from")
		}
		if v.IsSet("stats.to") {
			r.End = v.GetInt("stats.to")
		}
		if err := r.Validate(); err != nil {
			return s, err
		}
		s.Range = &r
	}

	return s, nil
}

// ResolvePixelArea returns the configured pixel area, or derives it from the georef
// resolution divided by the unit divisor.
func (s PipelineSettings) ResolvePixelArea(ref model.Georef) (float64, error) {
	if s.PixelArea > 0 {
		return s.PixelArea, nil
	}
	if ref.IsZero() {
		return 0, common.InvalidConfig("pipeline.pixel_area", "not set and the stack has no geotransform")
	}
	return ref.PixelArea() / s.AreaDivisor, nil
}

// Config builds the pipeline configuration for a stack with the given georef.
func (s PipelineSettings) Config(ref model.Georef) (pipeline.Config, error) {
	area, err := s.ResolvePixelArea(ref)
	if err != nil {
		return pipeline.Config{}, err
	}

	cfg := pipeline.Config{
		Table:          s.Table,
		Transitions:    s.Aggregator(area, s.TransitionLabels),
		Workers:        s.Workers,
		PreserveNoData: s.PreserveNoData,
	}
	reduced := s.Aggregator(area, s.ReducedLabels)
	cfg.Reduced = &reduced
	return cfg, nil
}

// Aggregator returns an aggregator over classes honoring the configured year range.
func (s PipelineSettings) Aggregator(pixelArea float64, classes model.ClassLabels) zonal.Aggregator {
	agg := zonal.New(pixelArea, classes)
	agg.Range = s.Range
	agg.Workers = s.Workers
	return agg
}

func parseLabels(key string, raw map[string]string) (model.ClassLabels, error) {
	labels := make(model.ClassLabels, 0, len(raw))
	for k, name := range raw {
		code, err := strconv.ParseUint(strings.TrimSpace(k), 10, 8)
		if err != nil {
			return nil, common.InvalidConfig(key, fmt.Sprintf("key %q is not a class code", k))
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, common.InvalidConfig(key, fmt.Sprintf("class %d has an empty name", code))
		}
		labels = append(labels, model.ClassLabel{Code: uint8(code), Name: name})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Code < labels[j].Code })
	return labels, nil
}
