package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PeterYR/krooster-stats/internal/domain/aggregate"
	"github.com/PeterYR/krooster-stats/internal/domain/catalog"
	"github.com/PeterYR/krooster-stats/internal/domain/milestone"
	"github.com/PeterYR/krooster-stats/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func sampleRows() []aggregate.Row {
	fields := []milestone.Flag{milestone.FlagOwned, milestone.FlagE2, milestone.FlagPot6}
	return []aggregate.Row{
		{OperatorID: "char_002_amiya", OperatorName: "Amiya", Accounts: 3, Fields: fields, Values: []int{3, 2, 1}},
		{OperatorID: "char_285_medic2", OperatorName: "Lancet-2", Accounts: 3, Fields: fields, Values: []int{1, 0, 0}},
	}
}

func TestWriteCSV(t *testing.T) {
	Convey("Given report rows", t, func() {
		fields := []milestone.Flag{milestone.FlagOwned, milestone.FlagE2, milestone.FlagPot6}
		var buf bytes.Buffer
		So(WriteCSV(&buf, sampleRows(), fields), ShouldBeNil)

		recs, err := csv.NewReader(&buf).ReadAll()
		So(err, ShouldBeNil)

		Convey("Then the header has name first and id, accounts last", func() {
			So(recs[0], ShouldResemble, []string{"operator_name", "owned", "E2", "pot-6", "operator_id", "accounts"})
		})

		Convey("Then each row carries its counts in column order", func() {
			So(recs, ShouldHaveLength, 3)
			So(recs[1], ShouldResemble, []string{"Amiya", "3", "2", "1", "char_002_amiya", "3"})
			So(recs[2], ShouldResemble, []string{"Lancet-2", "1", "0", "0", "char_285_medic2", "3"})
		})
	})

	Convey("Given a narrower field selection than the rows carry", t, func() {
		var buf bytes.Buffer
		So(WriteCSV(&buf, sampleRows(), []milestone.Flag{milestone.FlagPot6, milestone.FlagS1M3}), ShouldBeNil)

		Convey("Then missing columns are written as zero", func() {
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			So(lines[0], ShouldEqual, "operator_name,pot-6,S1M3,operator_id,accounts")
			So(lines[1], ShouldEqual, "Amiya,1,0,char_002_amiya,3")
		})
	})

	Convey("Given an output directory that does not exist", t, func() {
		dir := filepath.Join(t.TempDir(), "output")
		path, err := WriteFile(dir, "6_Reddit", sampleRows(), milestone.AllFlags())

		Convey("Then it is created and the report named by key", func() {
			So(err, ShouldBeNil)
			So(path, ShouldEqual, filepath.Join(dir, "6_Reddit.csv"))
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(data), ShouldStartWith, "operator_name,owned,E1,E2,max-lvl,S1M3,S2M3,S3M3,all-M3,mod-X3,mod-Y3,mod-D3,pot-6,operator_id,accounts\n")
		})
	})
}

func TestWriteAvailability(t *testing.T) {
	Convey("Given availability flags", t, func() {
		flags := []catalog.Availability{
			{ID: "char_002_amiya", Available: true, Modules: map[model.ModuleType]bool{model.ModuleX: true}},
			{ID: "char_1001_amiya2", Available: false, Modules: map[model.ModuleType]bool{}},
		}
		var buf bytes.Buffer
		So(WriteAvailability(&buf, flags), ShouldBeNil)

		Convey("Then booleans are written per module letter", func() {
			So(buf.String(), ShouldEqual,
				"operator_id,available,mod-X,mod-Y,mod-D\n"+
					"char_002_amiya,True,True,False,False\n"+
					"char_1001_amiya2,False,False,False,False\n")
		})
	})
}

func TestSummary(t *testing.T) {
	Convey("Given two cohorts", t, func() {
		a := Summarize("6", "output/6.csv", sampleRows())
		b := Summarize("5_Reddit", "output/5_Reddit.csv", nil)

		Convey("Then the most owned operator is picked", func() {
			So(a.Accounts, ShouldEqual, 3)
			So(a.Operators, ShouldEqual, 2)
			So(a.TopOwned, ShouldEqual, "Amiya")
			So(a.TopCount, ShouldEqual, 3)
			So(b.TopOwned, ShouldBeEmpty)
		})

		Convey("Then the rendered table lists both", func() {
			out := RenderSummary([]CohortSummary{a, b})
			So(out, ShouldContainSubstring, "cohort")
			So(out, ShouldContainSubstring, "Amiya (3)")
			So(out, ShouldContainSubstring, "5_Reddit")
		})
	})
}
