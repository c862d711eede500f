package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given a logger writing text to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithWriter(&buf)), ShouldBeNil)
		defer func() { So(Sync(), ShouldBeNil) }()
		ctx := context.Background()

		Convey("When an info line is written with fields", func() {
			Get().Info(ctx, "roster fetched", String("handle", "doctor"), Int("operators", 12), Bool("cached", false))

			Convey("Then the fields and caller appear in the output", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "roster fetched")
				So(out, ShouldContainSubstring, "handle=doctor")
				So(out, ShouldContainSubstring, "operators=12")
				So(out, ShouldContainSubstring, "cached=false")
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level is raised to warn", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			Get().Info(ctx, "hidden")
			Get().Warn(ctx, "shown", Duration("took", time.Second))

			Convey("Then info lines are dropped", func() {
				So(buf.String(), ShouldNotContainSubstring, "hidden")
				So(buf.String(), ShouldContainSubstring, "shown")
			})
		})

		Convey("When a named logger is used", func() {
			Named("worker").Error(ctx, "fetch failed", Error(errors.New("boom")))

			Convey("Then attributes are grouped under the name", func() {
				So(buf.String(), ShouldContainSubstring, "worker.error=boom")
			})
		})

		Convey("When an unknown level is given", func() {
			So(SetLevelString("loud"), ShouldNotBeNil)
		})
	})

	Convey("Given a JSON logger", t, func() {
		var buf bytes.Buffer
		So(Init(WithWriter(&buf), WithJSON(true)), ShouldBeNil)

		Get().Info(context.Background(), "run finished", Any("accounts", 3))

		Convey("Then each line is a JSON object", func() {
			var line map[string]any
			So(json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line), ShouldBeNil)
			So(line["msg"], ShouldEqual, "run finished")
			So(line["accounts"], ShouldEqual, 3)
		})
	})
}
