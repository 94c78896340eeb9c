package specmodel

import "testing"

func validSpec() VersionSpec {
	return VersionSpec{
		SchemaVersion: CurrentSchemaVersion,
		VersionID:     "v1.0.0",
		EngineSource:  SourceRef{Repo: "https://example.com/engine.git", Ref: "main"},
		Models: []ModelRef{
			{Source: "https://example.com/model.safetensors", TargetSubdir: "checkpoints"},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	s := validSpec()
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidate_RejectsBadSchemaVersion(t *testing.T) {
	s := validSpec()
	s.SchemaVersion = 1
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for wrong schema_version")
	}
}

func TestValidate_RejectsBadVersionID(t *testing.T) {
	cases := []string{"", "has space", "has/slash", "has:colon"}
	for _, id := range cases {
		s := validSpec()
		s.VersionID = id
		if err := s.Validate(); err == nil {
			t.Fatalf("expected error for version_id %q", id)
		}
	}
}

func TestValidate_RequiresRefOrCommit(t *testing.T) {
	s := validSpec()
	s.EngineSource.Ref = ""
	s.EngineSource.Commit = ""
	if err := s.Validate(); err == nil {
		t.Fatal("expected error when neither ref nor commit is set")
	}
}

func TestValidate_ExtensionMissingRepo(t *testing.T) {
	s := validSpec()
	s.Extensions = []SourceRef{{Ref: "main"}}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for extension missing repo")
	}
}

func TestValidate_ModelRequiresTarget(t *testing.T) {
	s := validSpec()
	s.Models = []ModelRef{{Source: "https://example.com/m.bin"}}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error when model has neither target_subdir nor target_path")
	}
}

func TestValidate_AcceptsSupportedChecksumAlgos(t *testing.T) {
	for _, checksum := range []string{"sha256:abc123", "sha1:abc123", "md5:abc123", "SHA256:ABC123"} {
		s := validSpec()
		s.Models[0].Checksum = checksum
		if err := s.Validate(); err != nil {
			t.Fatalf("Validate() with checksum %q error = %v", checksum, err)
		}
	}
}

func TestValidate_RejectsUnsupportedChecksumAlgo(t *testing.T) {
	cases := []string{"crc32:abc123", "bogus:abc123", "sha256", "sha256:"}
	for _, checksum := range cases {
		s := validSpec()
		s.Models[0].Checksum = checksum
		if err := s.Validate(); err == nil {
			t.Fatalf("expected error for checksum %q", checksum)
		}
	}
}

func TestValidate_RejectsPathTraversal(t *testing.T) {
	cases := []struct {
		subdir string
		path   string
	}{
		{subdir: "../outside"},
		{subdir: "checkpoints/../../etc"},
		{path: "/etc/passwd"},
	}
	for _, tc := range cases {
		s := validSpec()
		s.Models = []ModelRef{{Source: "https://example.com/m.bin", TargetSubdir: tc.subdir, TargetPath: tc.path}}
		if err := s.Validate(); err == nil {
			t.Fatalf("expected error for subdir=%q path=%q", tc.subdir, tc.path)
		}
	}
}
