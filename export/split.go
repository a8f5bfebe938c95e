package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

// Split extracts records from a parsed export document into individual XML
// files under outputRoot, one subdirectory per record type. Each output
// file is a minimal valid document preserving the original root and
// container tags and attributes around a deep copy of the record.
//
// Only a missing root element and failure to create outputRoot are fatal.
// Everything else - absent containers, excluded or colliding records,
// individual write failures - is recorded in the returned report and the
// run continues, so one bad entry never stops the rest.
func Split(doc *etree.Document, outputRoot string, opts Options, log *zap.Logger) (*Report, error) {
	if doc == nil || doc.Root() == nil {
		return nil, errors.New("document has no root element")
	}
	if len(opts.Mappings) == 0 {
		return nil, errors.New("nothing to extract, no mappings given")
	}
	if opts.NameAttr == "" {
		opts.NameAttr = "Name"
	}

	if err := os.MkdirAll(outputRoot, 0755); err != nil {
		return nil, fmt.Errorf("unable to create output directory: %w", err)
	}

	root := doc.Root()
	report := &Report{}

	for _, m := range opts.Mappings {
		splitContainer(root, outputRoot, m, &opts, report, log)
	}
	return report, nil
}

func splitContainer(root *etree.Element, outputRoot string, m Mapping, opts *Options, report *Report, log *zap.Logger) {
	container := root.SelectElement(m.Container)
	if container == nil {
		log.Debug("Container not present in export", zap.String("container", m.Container))
		report.add(opts, Event{Kind: EventContainerNotFound, Item: m.Item, Container: m.Container})
		return
	}

	items := container.SelectElements(m.Item)
	if len(items) == 0 {
		log.Debug("Container has no items", zap.String("container", m.Container), zap.String("item", m.Item))
		report.add(opts, Event{Kind: EventNoItemsFound, Item: m.Item, Container: m.Container})
		return
	}

	subdir := m.Item
	if opts.DirNaming == DirNamingContainer {
		subdir = m.Container
	}
	outDir := filepath.Join(outputRoot, subdir)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		report.add(opts, Event{Kind: EventWriteError, Item: m.Item, Container: m.Container,
			Err: fmt.Errorf("unable to create output subdirectory: %w", err)})
		return
	}

	rule, haveRule := opts.Exclusions[m.Container]
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		rawName := item.SelectAttrValue(opts.NameAttr, "")

		if haveRule {
			if value, excluded := rule.Excludes(item); excluded {
				report.add(opts, Event{Kind: EventSkipped, Item: m.Item, Container: m.Container,
					Name: rawName, Reason: "excluded by rule on " + rule.Field, Value: value})
				continue
			}
		}

		name := fileName(rawName, opts.Transliterate)
		name, path, ok := resolveCollision(name, outDir, seen, opts, report, m, rawName)
		if !ok {
			continue
		}

		if err := writeRecord(root, container, item, path); err != nil {
			report.add(opts, Event{Kind: EventWriteError, Item: m.Item, Container: m.Container,
				Name: rawName, Err: err})
			continue
		}

		seen[name] = struct{}{}
		report.add(opts, Event{Kind: EventCreated, Item: m.Item, Container: m.Container,
			Name: rawName, Path: path})
	}
}

// resolveCollision applies the configured collision policy. It returns the
// final base name and output path, or ok == false when the record should
// not be written (an event has been recorded in that case).
func resolveCollision(name, outDir string, seen map[string]struct{}, opts *Options, report *Report, m Mapping, rawName string) (string, string, bool) {
	path := filepath.Join(outDir, name+".xml")
	if opts.OnCollision == CollisionOverwrite {
		// observed behavior of the original tooling - last write wins
		return name, path, true
	}
	if !collides(name, path, seen) {
		return name, path, true
	}

	switch opts.OnCollision {
	case CollisionSuffix:
		base := name
		for i := 2; ; i++ {
			name = fmt.Sprintf("%s_%d", base, i)
			path = filepath.Join(outDir, name+".xml")
			if !collides(name, path, seen) {
				return name, path, true
			}
		}
	case CollisionSkip:
		report.add(opts, Event{Kind: EventSkipped, Item: m.Item, Container: m.Container,
			Name: rawName, Reason: "output file already exists", Path: path})
	case CollisionFail:
		report.add(opts, Event{Kind: EventWriteError, Item: m.Item, Container: m.Container,
			Name: rawName, Err: fmt.Errorf("output file already exists: %s", path)})
	}
	return "", "", false
}

func collides(name, path string, seen map[string]struct{}) bool {
	if _, ok := seen[name]; ok {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}

// writeRecord reconstructs a minimal document around a deep copy of the
// record and serializes it with an XML declaration. Copies keep the output
// independent from the source tree.
func writeRecord(root, container, item *etree.Element, path string) error {
	doc := etree.NewDocument()
	doc.WriteSettings = etree.WriteSettings{
		CanonicalText:    true,
		CanonicalAttrVal: true,
	}
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	newRoot := shallowCopy(root)
	doc.SetRoot(newRoot)

	newContainer := shallowCopy(container)
	newRoot.AddChild(newContainer)
	newContainer.AddChild(item.Copy())

	return doc.WriteToFile(path)
}

// shallowCopy duplicates an element's tag and attributes without its
// children.
func shallowCopy(el *etree.Element) *etree.Element {
	out := etree.NewElement(el.FullTag())
	for _, attr := range el.Attr {
		out.CreateAttr(attr.FullKey(), attr.Value)
	}
	return out
}
