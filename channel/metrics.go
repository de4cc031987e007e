/*
Copyright © 2026 the AMUSE authors.
This file is part of AMUSE.

AMUSE is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AMUSE is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AMUSE.  If not, see <http://www.gnu.org/licenses/>.*/

package channel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amuse_channel_calls_total",
		Help: "Calls sent to workers.",
	}, []string{"channel"})

	splitCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amuse_channel_split_calls_total",
		Help: "Sub-calls sent for calls longer than the maximum message length.",
	}, []string{"channel"})

	bytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amuse_channel_bytes_total",
		Help: "Bytes exchanged with workers.",
	}, []string{"channel", "direction"})

	notUnderstoodTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amuse_channel_not_understood_total",
		Help: "Calls rejected by workers as not understood.",
	}, []string{"channel"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amuse_channel_failures_total",
		Help: "Channels that died.",
	}, []string{"channel"})

	callSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "amuse_channel_call_seconds",
		Help:    "Time from sending a call to receiving its reply.",
		Buckets: prometheus.ExponentialBuckets(1e-5, 4, 12),
	}, []string{"channel"})
)
