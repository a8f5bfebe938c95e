// Package split implements the split subcommand: it resolves the source
// (file, directory or archive), feeds every export document found to the
// core splitter and logs emitted events.
package split

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"slx/archive"
	"slx/config"
	"slx/export"
	"slx/state"
)

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("split")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	src, err = filepath.Abs(src)
	if err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	env.NoDirs = cmd.Bool("nodirs")

	// Since zip "standard" does not define file name encoding we may need to
	// force archaic code page for old archives
	cp := cmd.String("force-zip-cp")
	if len(cp) > 0 {
		env.CodePage, err = ianaindex.IANA.Encoding(cp)
		if err != nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
			env.CodePage = nil
		} else {
			n, _ := ianaindex.IANA.Name(env.CodePage)
			log.Debug("Forcefully converting all non UTF-8 file names in archives", zap.String("charset", n))
		}
	}

	// correlate log and report entries across multi-export runs
	if id, er := uuid.NewV7(); er == nil {
		log = log.With(zap.Stringer("run_id", id))
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return process(ctx, src, dst, log)
}

// process handles the core splitting logic independently of CLI framework.
// It determines the input type (directory, archive, or single file) and
// processes accordingly.
func process(ctx context.Context, src, dst string, log *zap.Logger) error {
	var head, tail string
	for head = src; len(head) != 0; head, tail = filepath.Split(head) {
		if err := ctx.Err(); err != nil {
			return err
		}

		head = strings.TrimSuffix(head, string(filepath.Separator))

		fi, err := os.Stat(head)
		if err != nil {
			// does not exists - probably path in archive
			continue
		}

		if fi.Mode().IsDir() {
			if len(tail) != 0 {
				// directory cannot have tail - it would be simple file
				return fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
			}
			if err := processDir(ctx, head, dst, log); err != nil {
				return errors.New("unable to process directory")
			}
			break
		}

		if !fi.Mode().IsRegular() {
			return fmt.Errorf("unexpected path mode for (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}

		arc, err := isArchiveFile(head)
		if err != nil {
			// checking format - but cannot open target file
			return fmt.Errorf("unable to check archive type: %w", err)
		}
		if arc {
			// we need to look inside to see if path makes sense
			tail = strings.TrimPrefix(strings.TrimPrefix(src, head), string(filepath.Separator))
			if err := processArchive(ctx, head, tail, "", dst, log); err != nil {
				return fmt.Errorf("unable to process archive: %w", err)
			}
			break
		}

		if isExportFile(head) && len(tail) == 0 {
			// we have export file, it cannot have tail
			if file, err := os.Open(head); err != nil {
				log.Error("Unable to process file", zap.String("file", head), zap.Error(err))
			} else {
				defer file.Close()
				if err := processExport(ctx, file, filepath.Base(head), dst, log); err != nil {
					log.Error("Unable to process file", zap.String("file", head), zap.Error(err))
				}
			}
			break
		}
		return fmt.Errorf("input was not recognized as XML export (%s)", head)

	}
	if len(head) == 0 {
		return fmt.Errorf("input source was not found (%s)", src)
	}
	return nil
}

// processDir walks directory tree finding export files and processes them.
func processDir(ctx context.Context, dir, dst string, log *zap.Logger) (err error) {
	count := 0
	defer func() {
		if err == nil && count == 0 {
			log.Debug("Nothing to process", zap.String("dir", dir))
		}
	}()

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err != nil {
			log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		arc, err := isArchiveFile(path)
		if err != nil {
			// checking format - but cannot open target file
			log.Warn("Skipping file", zap.String("file", path), zap.Error(err))
			return nil
		}
		if arc {
			if err := processArchive(ctx, path, "", filepath.Dir(strings.TrimPrefix(path, dir)), dst, log); err != nil {
				log.Error("Unable to process archive", zap.String("file", path), zap.Error(err))
			}
			return nil
		}

		if !isExportFile(path) {
			log.Debug("Skipping file, not recognized as export or archive", zap.String("file", path))
			return nil
		}

		count++

		file, err := os.Open(path)
		if err != nil {
			log.Error("Unable to process file", zap.String("file", path), zap.Error(err))
			return nil
		}
		defer file.Close()

		src := strings.TrimPrefix(strings.TrimPrefix(path, dir), string(filepath.Separator))
		if err := processExport(ctx, file, src, dst, log); err != nil {
			log.Error("Unable to process file", zap.String("file", path), zap.Error(err))
		}
		return nil
	})
	return err
}

// processArchive walks all files inside archive, finds export files under
// "pathIn" and processes them.
func processArchive(ctx context.Context, path, pathIn, pathOut, dst string, log *zap.Logger) (err error) {
	count := 0
	defer func() {
		if err == nil && count == 0 {
			log.Debug("Nothing to process", zap.String("archive", path))
		}
	}()

	err = archive.Walk(path, pathIn, func(arc string, f *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !isExportInArchive(f) {
			log.Debug("Skipping file, not recognized as export", zap.String("archive", arc), zap.String("file", f.FileHeader.Name))
			return nil
		}

		count++

		r, err := f.Open()
		if err != nil {
			log.Error("Unable to process file in archive",
				zap.String("archive", arc), zap.String("file", f.FileHeader.Name), zap.Error(err))
			return nil
		}
		defer r.Close()

		cp := state.EnvFromContext(ctx).CodePage

		pathInArchive := f.FileHeader.Name
		if cp != nil && f.FileHeader.NonUTF8 {
			// forcing zip file name encoding
			if n, err := cp.NewDecoder().String(pathInArchive); err == nil {
				pathInArchive = n
			} else {
				n, _ = ianaindex.IANA.Name(cp)
				log.Warn("Unable to convert archive name from specified encoding",
					zap.String("charset", n), zap.String("path", pathInArchive), zap.Error(err))
			}
		}
		if err := processExport(ctx, r, filepath.Join(pathOut, pathInArchive), dst, log); err != nil {
			log.Error("Unable to process file in archive",
				zap.String("archive", arc), zap.String("file", f.FileHeader.Name), zap.Error(err))
		}
		return nil
	})
	return err
}

// processExport splits single export document. "src" is part of the source
// path (always including file name) relative to the original path. "dst" is
// the destination directory under which per-export output root is created.
func processExport(ctx context.Context, r io.Reader, src, dst string, log *zap.Logger) error {
	env := state.EnvFromContext(ctx)

	log.Info("Split starting", zap.String("from", src))
	start := time.Now()

	doc, err := export.Load(r)
	if err != nil {
		return fmt.Errorf("unable to parse export source (%s): %w", src, err)
	}

	// Save parsed document for debugging. Key by the full relative source
	// path - base names repeat across sites in multi-export runs.
	if env.Rpt != nil {
		if data, err := doc.WriteToBytes(); err == nil {
			env.Rpt.StoreData(fmt.Sprintf("source/%s", filepath.ToSlash(src)), data)
		}
	}

	outputRoot := buildOutputRoot(src, dst, env)

	report, err := export.Split(doc, outputRoot, buildOptions(&env.Cfg.Split, log), log)
	if err != nil {
		return fmt.Errorf("unable to split export (%s): %w", src, err)
	}

	log.Info("Split completed",
		zap.Duration("elapsed", time.Since(start)), zap.String("to", outputRoot),
		zap.Int("created", report.Created), zap.Int("skipped", report.Skipped), zap.Int("errors", report.Errors))
	return nil
}

// buildOptions translates validated configuration values into core splitter
// options with a zap reporting hook.
func buildOptions(cfg *config.SplitConfig, log *zap.Logger) export.Options {
	naming, err := export.ParseDirNaming(cfg.DirectoryNaming)
	if err != nil {
		log.Warn("Unknown directory naming requested, using item tags", zap.Error(err))
	}
	policy, err := export.ParseCollisionPolicy(cfg.OnCollision)
	if err != nil {
		log.Warn("Unknown collision policy requested, overwriting", zap.Error(err))
	}

	mappings := make([]export.Mapping, 0, len(cfg.Mappings))
	for _, m := range cfg.Mappings {
		mappings = append(mappings, export.Mapping{Item: m.Item, Container: m.Container})
	}

	var exclusions map[string]export.ExclusionRule
	if len(cfg.Exclusions) > 0 {
		exclusions = make(map[string]export.ExclusionRule, len(cfg.Exclusions))
		for _, e := range cfg.Exclusions {
			exclusions[e.Container] = export.ExclusionRule{Field: e.Field, Values: e.Values}
		}
	}

	return export.Options{
		Mappings:      mappings,
		Exclusions:    exclusions,
		NameAttr:      cfg.FilenameAttribute,
		DirNaming:     naming,
		OnCollision:   policy,
		Transliterate: cfg.FileNameTransliterate,
		OnEvent:       logEvent(log),
	}
}

func logEvent(log *zap.Logger) func(export.Event) {
	return func(ev export.Event) {
		switch ev.Kind {
		case export.EventCreated:
			log.Info("Created", zap.String("path", ev.Path))
		case export.EventContainerNotFound:
			log.Info("Container not present in export, skipping",
				zap.String("container", ev.Container), zap.String("item", ev.Item))
		case export.EventNoItemsFound:
			log.Info("No items found in container, skipping",
				zap.String("container", ev.Container), zap.String("item", ev.Item))
		case export.EventSkipped:
			log.Info("Skipping item",
				zap.String("item", ev.Item), zap.String("name", ev.Name),
				zap.String("reason", ev.Reason), zap.String("value", ev.Value))
		case export.EventWriteError:
			log.Error("Unable to write item",
				zap.String("item", ev.Item), zap.String("name", ev.Name), zap.Error(ev.Err))
		}
	}
}

// buildOutputRoot returns per-export output root: records land under
// destination, preserving relative source structure unless NoDirs is set,
// in a directory named after the export file itself.
func buildOutputRoot(src, dst string, env *state.LocalEnv) string {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	base = export.SafeName(base)
	if env.NoDirs {
		return filepath.Join(dst, base)
	}
	return filepath.Join(dst, filepath.Dir(src), base)
}
