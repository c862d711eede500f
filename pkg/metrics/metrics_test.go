package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func family(reg *prometheus.Registry, name string) *dto.MetricFamily {
	families, err := reg.Gather()
	So(err, ShouldBeNil)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func counterWithLabel(f *dto.MetricFamily, label, value string) float64 {
	for _, m := range f.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func TestManager(t *testing.T) {
	Convey("Given a manager on a fresh registry", t, func() {
		reg := prometheus.NewRegistry()
		m := NewManager(WithPrometheusRegistry(reg), WithNamespace("test"), WithSubsystem("unit"))

		Convey("When fetches are recorded", func() {
			m.RecordFetch("ok", 12)
			m.RecordFetch("ok", 40)
			m.RecordFetch("not_found", 3)

			Convey("Then outcomes are counted separately", func() {
				f := family(reg, "test_unit_roster_fetches_total")
				So(f, ShouldNotBeNil)
				So(counterWithLabel(f, "outcome", "ok"), ShouldEqual, 2)
				So(counterWithLabel(f, "outcome", "not_found"), ShouldEqual, 1)

				h := family(reg, "test_unit_roster_fetch_latency_milliseconds")
				So(h.GetMetric()[0].GetHistogram().GetSampleCount(), ShouldEqual, 3)
			})
		})

		Convey("When a run finishes", func() {
			m.RecordRun("ok", 1500, 42, 1700000000)

			Convey("Then the last-run gauges reflect it", func() {
				So(family(reg, "test_unit_run_last_accounts").GetMetric()[0].GetGauge().GetValue(), ShouldEqual, 42)
				So(family(reg, "test_unit_run_last_unix").GetMetric()[0].GetGauge().GetValue(), ShouldEqual, 1700000000)
				So(counterWithLabel(family(reg, "test_unit_runs_total"), "status", "ok"), ShouldEqual, 1)
			})
		})

		Convey("When queue gauges are updated", func() {
			m.UpdateQueueCapacity(100)
			m.UpdateQueueSize(7)

			Convey("Then the latest values are exposed", func() {
				So(family(reg, "test_unit_queue_capacity").GetMetric()[0].GetGauge().GetValue(), ShouldEqual, 100)
				So(family(reg, "test_unit_queue_size").GetMetric()[0].GetGauge().GetValue(), ShouldEqual, 7)
			})
		})

		Convey("When errors are recorded by component", func() {
			m.RecordErrorByComponent("worker", "fetch_error")
			m.RecordErrorByComponent("worker", "fetch_error")

			Convey("Then they accumulate per label set", func() {
				So(counterWithLabel(family(reg, "test_unit_errors_total"), "component", "worker"), ShouldEqual, 2)
			})
		})
	})

	Convey("Given the global registry", t, func() {
		Convey("Then package helpers register on it", func() {
			RecordCatalogCache("hit")
			f := family(GetRegistry(), "krooster_stats_catalog_cache_total")
			So(f, ShouldNotBeNil)
			So(counterWithLabel(f, "result", "hit"), ShouldBeGreaterThanOrEqualTo, 1)
		})
	})
}
