/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package buildinfo extracts the service version and VCS revision from the Go build information.
package buildinfo

import (
	"debug/buildinfo"
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const moduleName = "github.com/acronis/go-blogapi"

// DefaultVersion is reported when the binary carries no module version (e.g. "go run" or tests).
const DefaultVersion = "v0.0.0-dev"

const develVersion = "(devel)"

// Info contains the version information of the running binary.
type Info struct {
	Version   string
	Revision  string
	GoVersion string
}

var info Info
var infoOnce sync.Once

// Get returns the version information of the running binary.
func Get() Info {
	infoOnce.Do(func() {
		bi, _ := debug.ReadBuildInfo()
		info = extractInfo(bi, moduleName)
	})
	return info
}

// NewPrometheusCollector returns a gauge that is always 1 and carries the version information in labels.
func NewPrometheusCollector(namespace string) prometheus.Collector {
	i := Get()
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "A metric with a constant '1' value labeled by version, revision and Go version of the service.",
		ConstLabels: prometheus.Labels{
			"version":    i.Version,
			"revision":   i.Revision,
			"go_version": i.GoVersion,
		},
	})
	g.Set(1)
	return g
}

// extractInfo looks for the module either as the main module or among the dependencies
// (when the service is embedded into another binary). The module may have a major version suffix.
func extractInfo(bi *buildinfo.BuildInfo, modName string) Info {
	res := Info{Version: DefaultVersion}
	if bi == nil {
		return res
	}
	res.GoVersion = bi.GoVersion
	re, err := regexp.Compile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if err != nil {
		return res
	}

	var ver string
	if re.MatchString(bi.Main.Path) {
		ver = bi.Main.Version
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				res.Revision = s.Value
			}
		}
	} else {
		for _, dep := range bi.Deps {
			if re.MatchString(dep.Path) {
				ver = dep.Version
				break
			}
		}
	}
	if ver != "" && ver != develVersion {
		res.Version = ver
	}
	return res
}
