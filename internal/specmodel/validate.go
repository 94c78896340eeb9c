package specmodel

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
)

// versionIDPattern is spec §3's version_id grammar.
var versionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Validate checks the structural invariants of spec §4.4 step 1 ("Validate").
// It returns an *errs.EngineError with Kind KindValidation describing the
// first violation found.
func (s *VersionSpec) Validate() error {
	if s.SchemaVersion != CurrentSchemaVersion {
		return errs.New(errs.KindValidation,
			fmt.Sprintf("unsupported schema_version %d, expected %d", s.SchemaVersion, CurrentSchemaVersion))
	}
	if s.VersionID == "" || !versionIDPattern.MatchString(s.VersionID) {
		return errs.New(errs.KindValidation,
			fmt.Sprintf("version_id %q must match %s", s.VersionID, versionIDPattern.String()))
	}
	if err := validateSource("engine_source", s.EngineSource); err != nil {
		return err
	}
	for i, ext := range s.Extensions {
		if err := validateSource(fmt.Sprintf("extensions[%d]", i), ext); err != nil {
			return err
		}
	}
	for i, m := range s.Models {
		if err := validateModel(i, m); err != nil {
			return err
		}
	}
	return nil
}

func validateSource(field string, ref SourceRef) error {
	if ref.Repo == "" {
		return errs.New(errs.KindValidation, fmt.Sprintf("%s.repo is required", field))
	}
	if ref.Ref == "" && ref.Commit == "" {
		return errs.New(errs.KindValidation, fmt.Sprintf("%s must set at least one of ref or commit", field))
	}
	return nil
}

func validateModel(idx int, m ModelRef) error {
	field := fmt.Sprintf("models[%d]", idx)
	if m.Source == "" {
		return errs.New(errs.KindValidation, fmt.Sprintf("%s.source is required", field))
	}
	if m.TargetSubdir == "" && m.TargetPath == "" {
		return errs.New(errs.KindValidation,
			fmt.Sprintf("%s must set target_subdir or target_path", field))
	}
	if m.TargetSubdir != "" {
		if err := validateRelativePath(fmt.Sprintf("%s.target_subdir", field), m.TargetSubdir); err != nil {
			return err
		}
	}
	if m.TargetPath != "" {
		if err := validateRelativePath(fmt.Sprintf("%s.target_path", field), m.TargetPath); err != nil {
			return err
		}
	}
	if m.Checksum != "" {
		if err := validateChecksum(fmt.Sprintf("%s.checksum", field), m.Checksum); err != nil {
			return err
		}
	}
	return nil
}

// supportedChecksumAlgos mirrors the verifiers internal/fetch.Fetcher
// actually computes; a declared checksum in an algo outside this set would
// otherwise slip past validation and be fetched with no integrity check at
// all (spec §4.1 step 4 is unconditional on algo).
var supportedChecksumAlgos = map[string]bool{
	"sha256": true,
	"sha512": true,
	"sha1":   true,
	"md5":    true,
}

func validateChecksum(field, checksum string) error {
	parts := strings.SplitN(checksum, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return errs.New(errs.KindValidation, fmt.Sprintf("%s must be \"<algo>:<hex>\", got %q", field, checksum))
	}
	if !supportedChecksumAlgos[strings.ToLower(parts[0])] {
		return errs.New(errs.KindValidation, fmt.Sprintf("%s has unsupported algorithm %q", field, parts[0]))
	}
	return nil
}

// validateRelativePath rejects absolute paths and ".." traversal segments,
// the path-safety rule of spec §4.4 and §6 ("Path traversal in model
// target paths").
func validateRelativePath(field, path string) error {
	if strings.HasPrefix(path, "/") {
		return errs.New(errs.KindValidation, fmt.Sprintf("%s must be relative, got %q", field, path))
	}
	for _, seg := range strings.Split(filepathSplit(path), "/") {
		if seg == ".." {
			return errs.New(errs.KindValidation, fmt.Sprintf("%s must not contain \"..\" segments, got %q", field, path))
		}
	}
	return nil
}

// filepathSplit normalizes Windows-style separators before splitting, since
// a Spec may be authored on any platform.
func filepathSplit(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}
