package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/pipeline"
	"github.com/Veraticus/cobertura/internal/zones"
)

// LayerSource names one zone layer file.
type LayerSource struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
}

// ZonesSettings lists the zone layers in declared order.
type ZonesSettings struct {
	Names  zones.NameFields
	Layers []LayerSource
}

// LoadZonesConfig reads the zones section.
func LoadZonesConfig(v *viper.Viper) (ZonesSettings, error) {
	s := ZonesSettings{Names: zones.DefaultNameFields()}

	if f := v.GetString("zones.name_field"); f != "" {
		s.Names.Primary = f
	}
	if f := v.GetString("zones.fallback_name_field"); f != "" {
		s.Names.Fallback = f
	}

	if err := v.UnmarshalKey("zones.layers", &s.Layers); err != nil {
		return s, common.InvalidConfig("zones.layers", err.Error())
	}
	for i, l := range s.Layers {
		if strings.TrimSpace(l.Type) == "" {
			return s, common.InvalidConfig("zones.layers", fmt.Sprintf("layer %d has no type", i))
		}
		if strings.TrimSpace(l.Path) == "" {
			return s, common.InvalidConfig("zones.layers", fmt.Sprintf("layer %s has no path", l.Type))
		}
		s.Layers[i].Path = ExpandPath(l.Path)
	}

	return s, nil
}

// LoadLayers reads every configured layer, resolving relative paths against baseDir.
// A layer that cannot be read is left out and returned as a failure of the zones
// stage; the other layers are still returned.
func (s ZonesSettings) LoadLayers(baseDir string) ([]zones.Layer, []pipeline.Failure) {
	layers := make([]zones.Layer, 0, len(s.Layers))
	var failures []pipeline.Failure
	for _, src := range s.Layers {
		path := src.Path
		if baseDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		layer, err := zones.LoadLayer(path, src.Type)
		if err != nil {
			slog.Warn("Skipping zone layer",
				"type", src.Type,
				"path", path,
				"error", err)
			failures = append(failures, pipeline.Failure{Stage: pipeline.StageZones, Unit: src.Type, Err: err})
			continue
		}
		layers = append(layers, layer)
	}
	return layers, failures
}
