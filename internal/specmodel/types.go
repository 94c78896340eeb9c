// Package specmodel defines the VersionSpec and ResolvedLock data model of
// spec §3, and the structural validation rules of spec §4.4 step 1.
package specmodel

// CurrentSchemaVersion is the schema generation this binary understands
// (spec §3: "must equal the current schema generation (2)").
const CurrentSchemaVersion = 2

// SourceRef identifies a git source at either a floating ref or a pinned
// commit. At least one of Ref/Commit must be set (spec §3 invariants).
type SourceRef struct {
	Name   string `json:"name,omitempty"`
	Repo   string `json:"repo"`
	Ref    string `json:"ref,omitempty"`
	Commit string `json:"commit,omitempty"`
}

// ModelRef describes a model artifact to fetch into the workspace.
type ModelRef struct {
	Source       string `json:"source"`
	Name         string `json:"name,omitempty"`
	TargetSubdir string `json:"target_subdir,omitempty"`
	TargetPath   string `json:"target_path,omitempty"`
	Checksum     string `json:"checksum,omitempty"`
}

// Options carries per-Spec behavioral flags.
type Options struct {
	Offline    bool `json:"offline,omitempty"`
	SkipModels bool `json:"skip_models,omitempty"`
}

// VersionSpec is the user-authored, immutable description of a Version
// (spec §3). It is serialized as human-editable JSON: UTF-8, LF endings,
// sorted keys, 2-space indent when pretty-printed.
type VersionSpec struct {
	SchemaVersion int               `json:"schema_version"`
	VersionID     string            `json:"version_id"`
	EngineSource  SourceRef         `json:"engine_source"`
	Extensions    []SourceRef       `json:"extensions,omitempty"`
	Models        []ModelRef        `json:"models,omitempty"`
	ExtraPackages []string          `json:"extra_packages,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Options       Options           `json:"options,omitempty"`
}

// ResolvedLock is a VersionSpec with every ref replaced by a concrete
// commit, plus resolution metadata (spec §3).
type ResolvedLock struct {
	VersionSpec
	ResolvedAt int64  `json:"resolved_at"`
	SpecDigest string `json:"spec_digest"`
}
