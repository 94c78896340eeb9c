package errs

import (
	"errors"
	"testing"
)

func TestEngineError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *EngineError
		want string
	}{
		{
			name: "without underlying error",
			err:  New(KindValidation, "schema_version mismatch"),
			want: "[validation] schema_version mismatch",
		},
		{
			name: "with underlying error",
			err:  Wrap(KindNetwork, "download failed", errors.New("connection reset")),
			want: "[network] download failed: connection reset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEngineError_Unwrap(t *testing.T) {
	underlying := errors.New("boom")
	err := Wrap(KindUpload, "upload failed", underlying)
	if got := errors.Unwrap(err); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindUsage, 2},
		{KindValidation, 3},
		{KindRealization, 4},
		{KindEngineExec, 5},
		{KindIntegrity, 6},
		{KindOfflineUnavailable, 7},
		{KindNetwork, 5},
		{KindAuth, 5},
		{KindUpload, 5},
		{KindInternal, 5},
	}
	for _, tt := range tests {
		err := New(tt.kind, "x")
		if got := ExitCode(err); got != tt.want {
			t.Errorf("ExitCode(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
	// A Kind with no exitCodes entry (hypothetically unclassified) still
	// falls back to 1 ("other"); a plain, non-EngineError defaults to
	// KindInternal via KindOf, which is now itself in the 5 bucket.
	if got := ExitCode(errors.New("plain")); got != 5 {
		t.Errorf("ExitCode(plain) = %d, want 5", got)
	}
}

func TestLine(t *testing.T) {
	err := New(KindAuth, "missing token")
	if got, want := Line(err), "[auth] missing token"; got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
}

func TestJobFailureKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindValidation, "validation"},
		{KindRealization, "realization"},
		{KindIntegrity, "staging"},
		{KindEngineStart, "execution"},
		{KindUpload, "upload"},
		{KindInternal, "internal"},
	}
	for _, tt := range tests {
		if got := JobFailureKind(tt.kind); got != tt.want {
			t.Errorf("JobFailureKind(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
