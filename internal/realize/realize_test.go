package realize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/envbuild"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/fetch"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/gitresolver"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/specmodel"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/store"
)

func skipIfNoGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed, skipping realize tests")
	}
}

func newTestRepo(t *testing.T) (repoPath, commit string) {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %s: %v", args, out, err)
		}
	}
	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("numpy\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "requirements.txt")
	run("commit", "-m", "initial")

	out, err := exec.Command("git", "-C", dir, "rev-parse", "HEAD").Output()
	if err != nil {
		t.Fatalf("rev-parse HEAD: %v", err)
	}
	return dir, trimNewline(string(out))
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func fakeBin(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
}

func newRealizer(t *testing.T) *Realizer {
	t.Helper()
	cacheRoot := t.TempDir()
	s := store.New(cacheRoot)
	git := gitresolver.New(s.SourcesDir(), false, logging.NewDefault())
	f := fetch.New(s, fetch.Tokens{}, logging.NewDefault())

	bin := t.TempDir()
	fakeBin(t, bin, "python3", `
if [ "$2" = "venv" ]; then
  mkdir -p "$3/bin"
  touch "$3/pyvenv.cfg"
  cat > "$3/bin/pip" <<'EOS'
#!/bin/sh
exit 0
EOS
  chmod +x "$3/bin/pip"
fi
`)
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	builder := envbuild.New("python3", logging.NewDefault())

	return New(git, s, f, builder, logging.NewDefault())
}

func TestRealize_FullRun(t *testing.T) {
	skipIfNoGit(t)
	engineRepo, engineCommit := newTestRepo(t)

	modelBody := []byte("model bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(modelBody)
	}))
	defer srv.Close()

	r := newRealizer(t)
	lock := &specmodel.ResolvedLock{
		VersionSpec: specmodel.VersionSpec{
			SchemaVersion: specmodel.CurrentSchemaVersion,
			VersionID:     "v1",
			EngineSource:  specmodel.SourceRef{Repo: engineRepo, Commit: engineCommit},
			Models: []specmodel.ModelRef{
				{Source: srv.URL + "/model.safetensors", TargetSubdir: "checkpoints"},
			},
		},
		ResolvedAt: 1,
		SpecDigest: "digest1",
	}

	workspace := t.TempDir()
	res, err := r.Realize(context.Background(), lock, Options{WorkspaceDir: workspace})
	if err != nil {
		t.Fatalf("Realize() error = %v", err)
	}
	if res.ShortCircuit {
		t.Fatal("first realize should not short-circuit")
	}

	if _, err := os.Stat(filepath.Join(workspace, "engine", "requirements.txt")); err != nil {
		t.Fatalf("expected engine projection: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, "models", "checkpoints", "model.safetensors")); err != nil {
		t.Fatalf("expected model projection: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, ".env_marker")); err != nil {
		t.Fatalf("expected marker file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, "extra_model_paths.yaml")); err != nil {
		t.Fatalf("expected model-search-paths file: %v", err)
	}

	// Second realize with the same lock short-circuits.
	res2, err := r.Realize(context.Background(), lock, Options{WorkspaceDir: workspace})
	if err != nil {
		t.Fatalf("second Realize() error = %v", err)
	}
	if !res2.ShortCircuit {
		t.Fatal("expected second realize to short-circuit on a warm workspace")
	}
}

func TestRealize_DryRunTouchesNothing(t *testing.T) {
	skipIfNoGit(t)
	engineRepo, engineCommit := newTestRepo(t)

	r := newRealizer(t)
	lock := &specmodel.ResolvedLock{
		VersionSpec: specmodel.VersionSpec{
			SchemaVersion: specmodel.CurrentSchemaVersion,
			VersionID:     "v1",
			EngineSource:  specmodel.SourceRef{Repo: engineRepo, Commit: engineCommit},
		},
		ResolvedAt: 1,
		SpecDigest: "digest1",
	}

	workspace := t.TempDir()
	res, err := r.Realize(context.Background(), lock, Options{WorkspaceDir: workspace, DryRun: true})
	if err != nil {
		t.Fatalf("Realize() error = %v", err)
	}
	if len(res.Plan.WillCloneOrCheckout) != 1 {
		t.Fatalf("expected 1 planned checkout, got %d", len(res.Plan.WillCloneOrCheckout))
	}
	if _, err := os.Stat(filepath.Join(workspace, "engine")); !os.IsNotExist(err) {
		t.Fatal("dry-run must not touch the filesystem")
	}
}

func TestRealize_SkipModelsWarns(t *testing.T) {
	skipIfNoGit(t)
	engineRepo, engineCommit := newTestRepo(t)

	r := newRealizer(t)
	lock := &specmodel.ResolvedLock{
		VersionSpec: specmodel.VersionSpec{
			SchemaVersion: specmodel.CurrentSchemaVersion,
			VersionID:     "v1",
			EngineSource:  specmodel.SourceRef{Repo: engineRepo, Commit: engineCommit},
			Models: []specmodel.ModelRef{
				{Source: "https://example.com/missing.bin", TargetSubdir: "checkpoints"},
			},
			Options: specmodel.Options{SkipModels: true},
		},
		ResolvedAt: 1,
		SpecDigest: "digest1",
	}

	workspace := t.TempDir()
	res, err := r.Realize(context.Background(), lock, Options{WorkspaceDir: workspace})
	if err != nil {
		t.Fatalf("Realize() error = %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a skip_models warning")
	}
}

func TestRealize_PartialWarningLeavesMarkerUnwritten(t *testing.T) {
	skipIfNoGit(t)
	engineRepo, engineCommit := newTestRepo(t)

	r := newRealizer(t)
	lock := &specmodel.ResolvedLock{
		VersionSpec: specmodel.VersionSpec{
			SchemaVersion: specmodel.CurrentSchemaVersion,
			VersionID:     "v1",
			EngineSource:  specmodel.SourceRef{Repo: engineRepo, Commit: engineCommit},
			Models: []specmodel.ModelRef{
				{Source: "https://example.invalid/missing.bin", TargetSubdir: "checkpoints"},
			},
		},
		ResolvedAt: 1,
		SpecDigest: "digest1",
	}

	workspace := t.TempDir()
	res, err := r.Realize(context.Background(), lock, Options{WorkspaceDir: workspace, Offline: true})
	if err != nil {
		t.Fatalf("Realize() error = %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a model-unavailable warning")
	}
	if _, err := os.Stat(filepath.Join(workspace, ".env_marker")); !os.IsNotExist(err) {
		t.Fatalf("expected no marker written after a partial realize, stat err = %v", err)
	}
}
