/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// RequireSamplesCountInHistogram asserts that the histogram observed exactly wantSamplesCount values.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Histogram, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var m dto.Metric
	require.NoError(t, hist.Write(&m))
	require.Equal(t, wantSamplesCount, int(m.GetHistogram().GetSampleCount()))
}
