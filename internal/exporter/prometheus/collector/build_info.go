// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sustainable-computing-io/pmic-logger/internal/version"
)

const pmicNS = "pmic"

// BuildInfoCollector exports pmic_build_info, a constant 1 labeled with the
// binary's version information
type BuildInfoCollector struct {
	desc   *prom.Desc
	labels []string
}

var _ prom.Collector = (*BuildInfoCollector)(nil)

func NewBuildInfoCollector() *BuildInfoCollector {
	v := version.Info()
	return &BuildInfoCollector{
		desc: prom.NewDesc(
			prom.BuildFQName(pmicNS, "build", "info"),
			"A metric with a constant '1' value labeled with version information",
			[]string{"arch", "os", "branch", "revision", "version", "buildtime", "goversion"},
			nil,
		),
		labels: []string{v.GoArch, v.GoOS, v.GitBranch, v.GitCommit, v.Version, v.BuildTime, v.GoVersion},
	}
}

func (c *BuildInfoCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.desc
}

func (c *BuildInfoCollector) Collect(ch chan<- prom.Metric) {
	ch <- prom.MustNewConstMetric(c.desc, prom.GaugeValue, 1, c.labels...)
}
