package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"go.uber.org/zap/zaptest"
)

const sampleExport = `<FormsAndObjectsExport Version="010000">
	<Forms Type="1">
		<Form Name="A" Scope="site"><Property Name="caption">Main</Property></Form>
		<Form Name="B/C"/>
	</Forms>
	<Scripts/>
	<IDODefinitions>
		<IDODefinition Name="CustomOrders"><AccessAs> SLCustom </AccessAs></IDODefinition>
		<IDODefinition Name="SLItems"><AccessAs> Core </AccessAs></IDODefinition>
		<IDODefinition Name="NoAccess"/>
	</IDODefinitions>
</FormsAndObjectsExport>`

func mustLoad(t *testing.T, xml string) *etree.Document {
	t.Helper()

	doc, err := Load(strings.NewReader(xml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return doc
}

func mustReadBack(t *testing.T, path string) *etree.Document {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output file: %v", err)
	}
	defer f.Close()

	doc, err := Load(f)
	if err != nil {
		t.Fatalf("re-parse output file: %v", err)
	}
	return doc
}

func TestSplitScenario(t *testing.T) {
	log := zaptest.NewLogger(t)
	doc := mustLoad(t, sampleExport)
	out := t.TempDir()

	report, err := Split(doc, out, Options{
		Mappings: []Mapping{{Item: "Form", Container: "Forms"}},
	}, log)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	if report.Created != 2 {
		t.Fatalf("expected 2 created files, got %d", report.Created)
	}
	for _, name := range []string{"A.xml", "B_C.xml"} {
		if _, err := os.Stat(filepath.Join(out, "Form", name)); err != nil {
			t.Fatalf("expected output file %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(out, "Form", "A.xml"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.HasPrefix(string(data), `<?xml version="1.0" encoding="utf-8"?>`) {
		t.Fatalf("output is missing XML declaration: %q", string(data[:40]))
	}

	res := mustReadBack(t, filepath.Join(out, "Form", "A.xml"))
	root := res.Root()
	if root.Tag != "FormsAndObjectsExport" {
		t.Fatalf("unexpected root tag %q", root.Tag)
	}
	if got := root.SelectAttrValue("Version", ""); got != "010000" {
		t.Fatalf("root attribute not preserved: %q", got)
	}

	containers := root.ChildElements()
	if len(containers) != 1 || containers[0].Tag != "Forms" {
		t.Fatalf("expected single Forms container, got %v", containers)
	}
	if got := containers[0].SelectAttrValue("Type", ""); got != "1" {
		t.Fatalf("container attribute not preserved: %q", got)
	}

	items := containers[0].ChildElements()
	if len(items) != 1 || items[0].Tag != "Form" {
		t.Fatalf("expected exactly one Form record, got %v", items)
	}
	if got := items[0].SelectAttrValue("Scope", ""); got != "site" {
		t.Fatalf("record attribute not preserved: %q", got)
	}
	prop := items[0].SelectElement("Property")
	if prop == nil || prop.SelectAttrValue("Name", "") != "caption" || prop.Text() != "Main" {
		t.Fatalf("record subtree not preserved: %v", prop)
	}
}

func TestSplitRoundTripMatchesSource(t *testing.T) {
	log := zaptest.NewLogger(t)
	doc := mustLoad(t, sampleExport)
	out := t.TempDir()

	if _, err := Split(doc, out, Options{
		Mappings: []Mapping{{Item: "Form", Container: "Forms"}},
	}, log); err != nil {
		t.Fatalf("Split: %v", err)
	}

	src := doc.Root().SelectElement("Forms").SelectElements("Form")[0]
	got := mustReadBack(t, filepath.Join(out, "Form", "A.xml")).
		Root().SelectElement("Forms").SelectElement("Form")

	if len(got.Attr) != len(src.Attr) {
		t.Fatalf("attribute count mismatch: got %d, want %d", len(got.Attr), len(src.Attr))
	}
	for _, a := range src.Attr {
		if got.SelectAttrValue(a.Key, "") != a.Value {
			t.Fatalf("attribute %s mismatch", a.Key)
		}
	}
	if len(got.ChildElements()) != len(src.ChildElements()) {
		t.Fatalf("child count mismatch")
	}
}

func TestSplitExclusionRule(t *testing.T) {
	log := zaptest.NewLogger(t)
	doc := mustLoad(t, sampleExport)
	out := t.TempDir()

	report, err := Split(doc, out, Options{
		Mappings: []Mapping{{Item: "IDODefinition", Container: "IDODefinitions"}},
		Exclusions: map[string]ExclusionRule{
			"IDODefinitions": {Field: "AccessAs", Values: []string{"BaseSyteLine", "Core"}},
		},
	}, log)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	// written if and only if AccessAs is absent or outside the excluded set
	if _, err := os.Stat(filepath.Join(out, "IDODefinition", "CustomOrders.xml")); err != nil {
		t.Fatalf("expected CustomOrders to be written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "IDODefinition", "NoAccess.xml")); err != nil {
		t.Fatalf("expected NoAccess to be written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "IDODefinition", "SLItems.xml")); !os.IsNotExist(err) {
		t.Fatalf("expected SLItems to be excluded, stat err: %v", err)
	}

	if report.Created != 2 || report.Skipped != 1 {
		t.Fatalf("unexpected counts: created %d, skipped %d", report.Created, report.Skipped)
	}
	for _, ev := range report.Events {
		if ev.Kind == EventSkipped {
			if ev.Name != "SLItems" || ev.Value != "Core" {
				t.Fatalf("unexpected skip event: %+v", ev)
			}
		}
	}
}

func TestSplitMissingContainerTolerated(t *testing.T) {
	log := zaptest.NewLogger(t)
	doc := mustLoad(t, sampleExport)
	out := t.TempDir()

	report, err := Split(doc, out, Options{
		Mappings: []Mapping{
			{Item: "Widget", Container: "Widgets"},
			{Item: "Form", Container: "Forms"},
		},
	}, log)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	if report.Created != 2 {
		t.Fatalf("other entries must be processed normally, created %d", report.Created)
	}
	if len(report.Events) == 0 || report.Events[0].Kind != EventContainerNotFound || report.Events[0].Container != "Widgets" {
		t.Fatalf("expected leading container-not-found event, got %+v", report.Events)
	}
	if _, err := os.Stat(filepath.Join(out, "Widget")); !os.IsNotExist(err) {
		t.Fatalf("no subdirectory expected for absent container")
	}
}

func TestSplitEmptyContainer(t *testing.T) {
	log := zaptest.NewLogger(t)
	doc := mustLoad(t, sampleExport)

	report, err := Split(doc, t.TempDir(), Options{
		Mappings: []Mapping{{Item: "Script", Container: "Scripts"}},
	}, log)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(report.Events) != 1 || report.Events[0].Kind != EventNoItemsFound {
		t.Fatalf("expected single no-items event, got %+v", report.Events)
	}
}

func TestSplitUnnamedItem(t *testing.T) {
	log := zaptest.NewLogger(t)
	doc := mustLoad(t, `<Export><Forms><Form/><Form Name="  "/></Forms></Export>`)
	out := t.TempDir()

	report, err := Split(doc, out, Options{
		Mappings: []Mapping{{Item: "Form", Container: "Forms"}},
	}, log)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	// both records collapse to the sentinel name, last write wins
	if report.Created != 2 {
		t.Fatalf("created %d, want 2", report.Created)
	}
	if _, err := os.Stat(filepath.Join(out, "Form", "UnnamedItem.xml")); err != nil {
		t.Fatalf("expected sentinel output name: %v", err)
	}
}

const collisionExport = `<Export><Forms>
	<Form Name="Dup"><Seq V="1"/></Form>
	<Form Name="Dup"><Seq V="2"/></Form>
</Forms></Export>`

func seqValue(t *testing.T, path string) string {
	t.Helper()
	return mustReadBack(t, path).Root().
		SelectElement("Forms").SelectElement("Form").
		SelectElement("Seq").SelectAttrValue("V", "")
}

func TestSplitCollisionOverwrite(t *testing.T) {
	log := zaptest.NewLogger(t)
	out := t.TempDir()

	report, err := Split(mustLoad(t, collisionExport), out, Options{
		Mappings: []Mapping{{Item: "Form", Container: "Forms"}},
	}, log)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if report.Created != 2 {
		t.Fatalf("created %d, want 2", report.Created)
	}
	if got := seqValue(t, filepath.Join(out, "Form", "Dup.xml")); got != "2" {
		t.Fatalf("last write must win, got record %q", got)
	}
}

func TestSplitCollisionSuffix(t *testing.T) {
	log := zaptest.NewLogger(t)
	out := t.TempDir()

	report, err := Split(mustLoad(t, collisionExport), out, Options{
		Mappings:    []Mapping{{Item: "Form", Container: "Forms"}},
		OnCollision: CollisionSuffix,
	}, log)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if report.Created != 2 {
		t.Fatalf("created %d, want 2", report.Created)
	}
	if got := seqValue(t, filepath.Join(out, "Form", "Dup.xml")); got != "1" {
		t.Fatalf("first record content changed: %q", got)
	}
	if got := seqValue(t, filepath.Join(out, "Form", "Dup_2.xml")); got != "2" {
		t.Fatalf("suffixed record mismatch: %q", got)
	}
}

func TestSplitCollisionSkip(t *testing.T) {
	log := zaptest.NewLogger(t)
	out := t.TempDir()

	report, err := Split(mustLoad(t, collisionExport), out, Options{
		Mappings:    []Mapping{{Item: "Form", Container: "Forms"}},
		OnCollision: CollisionSkip,
	}, log)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if report.Created != 1 || report.Skipped != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if got := seqValue(t, filepath.Join(out, "Form", "Dup.xml")); got != "1" {
		t.Fatalf("existing record must be kept, got %q", got)
	}
}

func TestSplitCollisionFail(t *testing.T) {
	log := zaptest.NewLogger(t)

	report, err := Split(mustLoad(t, collisionExport), t.TempDir(), Options{
		Mappings:    []Mapping{{Item: "Form", Container: "Forms"}},
		OnCollision: CollisionFail,
	}, log)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if report.Created != 1 || report.Errors != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
}

func TestSplitContainerDirNaming(t *testing.T) {
	log := zaptest.NewLogger(t)
	out := t.TempDir()

	if _, err := Split(mustLoad(t, sampleExport), out, Options{
		Mappings:  []Mapping{{Item: "Form", Container: "Forms"}},
		DirNaming: DirNamingContainer,
	}, log); err != nil {
		t.Fatalf("Split: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "Forms", "A.xml")); err != nil {
		t.Fatalf("expected container-named subdirectory: %v", err)
	}
}

func TestSplitCustomNameAttribute(t *testing.T) {
	log := zaptest.NewLogger(t)
	out := t.TempDir()

	doc := mustLoad(t, `<Export><Forms><Form ID="F-100" Name="ignored"/></Forms></Export>`)
	if _, err := Split(doc, out, Options{
		Mappings: []Mapping{{Item: "Form", Container: "Forms"}},
		NameAttr: "ID",
	}, log); err != nil {
		t.Fatalf("Split: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "Form", "F-100.xml")); err != nil {
		t.Fatalf("expected file named after ID attribute: %v", err)
	}
}

func TestSplitBadInput(t *testing.T) {
	log := zaptest.NewLogger(t)
	opts := Options{Mappings: []Mapping{{Item: "Form", Container: "Forms"}}}

	if _, err := Split(nil, t.TempDir(), opts, log); err == nil {
		t.Fatal("expected error for nil document")
	}
	if _, err := Split(etree.NewDocument(), t.TempDir(), opts, log); err == nil {
		t.Fatal("expected error for document without root")
	}
	if _, err := Split(mustLoad(t, sampleExport), t.TempDir(), Options{}, log); err == nil {
		t.Fatal("expected error for empty mappings")
	}
}

func TestSplitEventDelivery(t *testing.T) {
	log := zaptest.NewLogger(t)

	var kinds []EventKind
	report, err := Split(mustLoad(t, sampleExport), t.TempDir(), Options{
		Mappings: []Mapping{
			{Item: "Widget", Container: "Widgets"},
			{Item: "Form", Container: "Forms"},
		},
		OnEvent: func(ev Event) { kinds = append(kinds, ev.Kind) },
	}, log)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	if len(kinds) != len(report.Events) {
		t.Fatalf("observer saw %d events, report has %d", len(kinds), len(report.Events))
	}
	want := []EventKind{EventContainerNotFound, EventCreated, EventCreated}
	for i, k := range want {
		if kinds[i] != k {
			t.Fatalf("event %d: got %v, want %v", i, kinds[i], k)
		}
	}
}
