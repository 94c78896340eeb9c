package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/specmodel"
)

// stringList accumulates repeated flag occurrences, e.g. --extension a
// --extension b (teacher pattern: cmd/slctl's comma-separated flags, here
// adapted to repeatable flags since extension/model URIs may themselves
// contain commas in query strings).
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func (e *environment) handleCreate(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.KindUsage, "create requires a version_id")
	}
	versionID := args[0]

	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var engine string
	var extensions, models stringList
	var extraPackages stringList
	fs.StringVar(&engine, "engine", "", "Engine source, URL[@ref] (required)")
	fs.Var(&extensions, "extension", "Extension source URL[@ref] (repeatable)")
	fs.Var(&models, "model", "Model source URI, optionally name=URI;checksum=<algo>:<hex> (repeatable)")
	fs.Var(&extraPackages, "extra-package", "Extra pip requirement specifier (repeatable)")
	if err := fs.Parse(args[1:]); err != nil {
		return errs.Wrap(errs.KindUsage, "parsing create flags", err)
	}
	if engine == "" {
		return errs.New(errs.KindUsage, "--engine is required")
	}

	spec := specmodel.VersionSpec{
		SchemaVersion: specmodel.CurrentSchemaVersion,
		VersionID:     versionID,
		EngineSource:  parseSourceRef("", engine),
		ExtraPackages: []string(extraPackages),
	}
	for _, ext := range extensions {
		spec.Extensions = append(spec.Extensions, parseSourceRef("", ext))
	}
	for _, m := range models {
		spec.Models = append(spec.Models, parseModelRef(m))
	}

	if err := spec.Validate(); err != nil {
		return err
	}

	path := e.cfg.SpecPath(versionID)
	if err := writeSpec(path, &spec); err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// parseSourceRef splits "URL@ref" into repo and ref; a bare commit-length
// hex string after '@' is still stored as Ref — the Spec Resolver (C4)
// treats any non-empty ref as something to look up, and a 40-char hex ref
// happens to already equal its own commit once resolved.
func parseSourceRef(name, raw string) specmodel.SourceRef {
	repo, ref := raw, ""
	if idx := strings.LastIndex(raw, "@"); idx >= 0 {
		repo, ref = raw[:idx], raw[idx+1:]
	}
	return specmodel.SourceRef{Name: name, Repo: repo, Ref: ref}
}

// parseModelRef accepts either a bare URI or a "key=value;..." form
// (source=..., name=..., target_subdir=..., target_path=..., checksum=...).
func parseModelRef(raw string) specmodel.ModelRef {
	if !strings.Contains(raw, "=") {
		return specmodel.ModelRef{Source: raw, TargetSubdir: "checkpoints"}
	}
	m := specmodel.ModelRef{TargetSubdir: "checkpoints"}
	for _, pair := range strings.Split(raw, ";") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "source":
			m.Source = kv[1]
		case "name":
			m.Name = kv[1]
		case "target_subdir":
			m.TargetSubdir = kv[1]
		case "target_path":
			m.TargetPath = kv[1]
		case "checksum":
			m.Checksum = kv[1]
		}
	}
	return m
}

// writeSpec serializes spec as human-editable JSON per spec §4.7's "Spec
// file format": UTF-8, LF endings, sorted keys, 2-space indent.
func writeSpec(path string, spec *specmodel.VersionSpec) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("creating %s", filepath.Dir(path)), err)
	}
	data, err := specmodel.CanonicalJSON(spec)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "encoding spec", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("writing %s", path), err)
	}
	return nil
}
