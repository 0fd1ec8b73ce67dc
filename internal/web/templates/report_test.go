package templates

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetfill/internal/core"
)

func TestReport(t *testing.T) {
	ds, err := core.Load("q1 <draft>", core.Grid{
		{core.Text("Name"), core.Text("Age")},
		{core.Text("Alice"), core.Null},
		{core.Text("<b>Bob</b>"), core.Text("25")},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rep := core.BuildReport(ds, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	var buf bytes.Buffer
	if err := Report(rep).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"q1 &lt;draft&gt;",
		"&lt;b&gt;Bob&lt;/b&gt;",
		`<td class="na">N/A</td>`,
		"<b>50%</b> missing",
		"2024-03-01 12:00:00 UTC",
		`<th>#</th><th>Name</th><th>Age</th>`,
		`<meter min="0" max="100" value="100"></meter> <b>1</b>`,
		`<meter min="0" max="100" value="0"></meter> <b>0</b>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Contains(out, "<b>Bob</b>") {
		t.Error("cell text was not escaped")
	}
}

func TestErrorAlert(t *testing.T) {
	var buf bytes.Buffer
	if err := ErrorAlert("No data to export", "Choose another option", "EXP001").Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "Code: EXP001") {
		t.Errorf("alert = %s", buf.String())
	}
}

func TestReport_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := Report(core.Report{Title: "x"}).Render(ctx, &buf)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes after cancellation", buf.Len())
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestRender_WriteError(t *testing.T) {
	if err := ErrorAlert("x", "", "ERR000").Render(context.Background(), failWriter{}); err == nil {
		t.Error("expected write error to propagate")
	}
}
