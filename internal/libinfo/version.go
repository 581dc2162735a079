/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package libinfo

import (
	"debug/buildinfo"
	"regexp"
	"sync"

	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

const moduleName = "github.com/RafiulM/git-search-sub000"

const PrometheusAppVersionLabel = "git_search_version"

// AddPrometheusAppVersionLabel returns a copy of the passed labels
// with the service version label added.
func AddPrometheusAppVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels))
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusAppVersionLabel] = GetAppVersion()
	return labelsCopy
}

var appVersion string
var appVersionOnce sync.Once

// GetAppVersion returns the service version embedded into the binary build info.
func GetAppVersion() string {
	appVersionOnce.Do(initAppVersion)
	return appVersion
}

func initAppVersion() {
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		if buildInfo.Main.Path == moduleName && buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			appVersion = buildInfo.Main.Version
		} else {
			appVersion = extractLibVersion(buildInfo, moduleName)
		}
	}
	if appVersion == "" {
		appVersion = "v0.0.0"
	}
}

// extractLibVersion extracts the version of the given module from the build info.
// It expects the module name to be in the form "moduleName" or "moduleName/vX" where X is a major version number.
// This format is used by Go modules to indicate major version changes.
func extractLibVersion(buildInfo *buildinfo.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	re, err := regexp.Compile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if err != nil {
		return "" // should never happen
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
