package deployment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saurabhbilakhia/taxportal/internal/application/pipeline"
	"github.com/saurabhbilakhia/taxportal/internal/config"
	"github.com/saurabhbilakhia/taxportal/internal/domain"
)

type upload struct {
	local, remote string
}

type fakeSession struct {
	handler  func(cmd string) (*domain.CommandResult, error)
	commands []string
	uploads  []upload
	mkdirs   []string
	closed   bool
}

func (s *fakeSession) Exec(_ context.Context, cmd string) (*domain.CommandResult, error) {
	s.commands = append(s.commands, cmd)
	if s.handler != nil {
		return s.handler(cmd)
	}
	return &domain.CommandResult{Command: cmd}, nil
}

func (s *fakeSession) Upload(localPath, remotePath string) error {
	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSSHFileTransfer, err)
	}
	s.uploads = append(s.uploads, upload{localPath, remotePath})
	return nil
}

func (s *fakeSession) MkdirAll(path string) error {
	s.mkdirs = append(s.mkdirs, path)
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSession) sideEffects() int {
	return len(s.commands) + len(s.uploads) + len(s.mkdirs)
}

func (s *fakeSession) ran(substr string) bool {
	for _, c := range s.commands {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

func (s *fakeSession) count(substr string) int {
	n := 0
	for _, c := range s.commands {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func (s *fakeSession) uploadedTo(remote string) bool {
	for _, u := range s.uploads {
		if u.remote == remote {
			return true
		}
	}
	return false
}

type fakeLocal struct {
	runs      []string
	exports   []string
	runErr    error
	exportErr error
}

func (l *fakeLocal) Run(_ context.Context, dir, name string, args ...string) error {
	l.runs = append(l.runs, dir+": "+name+" "+strings.Join(args, " "))
	return l.runErr
}

func (l *fakeLocal) ExportGzip(_ context.Context, dest, name string, args ...string) error {
	l.exports = append(l.exports, dest+": "+name+" "+strings.Join(args, " "))
	if l.exportErr != nil {
		return l.exportErr
	}
	return os.WriteFile(dest, []byte("image"), 0600)
}

type recordingReporter struct {
	lines []string
	steps map[string]pipeline.Outcome
}

func (r *recordingReporter) Section(title string)    { r.lines = append(r.lines, "section: "+title) }
func (r *recordingReporter) Info(msg string)         { r.lines = append(r.lines, "info: "+msg) }
func (r *recordingReporter) Command(cmd string)      { r.lines = append(r.lines, "run: "+cmd) }
func (r *recordingReporter) Success(msg string)      { r.lines = append(r.lines, "ok: "+msg) }
func (r *recordingReporter) Upload(local, remote string) {
	r.lines = append(r.lines, "upload: "+local+" -> "+remote)
}
func (r *recordingReporter) Output(stdout, stderr []byte) {
	if len(stdout) > 0 {
		r.lines = append(r.lines, "out: "+string(stdout))
	}
	if len(stderr) > 0 {
		r.lines = append(r.lines, "err: "+string(stderr))
	}
}
func (r *recordingReporter) Step(name string, outcome pipeline.Outcome) {
	if r.steps == nil {
		r.steps = make(map[string]pipeline.Outcome)
	}
	r.steps[name] = outcome
}
func (r *recordingReporter) Failure(msg string, hints ...string) {
	r.lines = append(r.lines, "fail: "+msg)
	for _, h := range hints {
		r.lines = append(r.lines, "hint: "+h)
	}
}

func (r *recordingReporter) contains(substr string) bool {
	for _, l := range r.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

const testCompose = `services:
  db:
    image: postgres:16
  app:
    image: clientportal:latest
  nginx:
    image: nginx:alpine
  certbot:
    image: certbot/certbot
`

// newDeployDir lays out the local artifacts a deployment reads.
func newDeployDir(t *testing.T, withSecrets bool) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "deploy")
	require.NoError(t, os.MkdirAll(dir, 0700))

	files := map[string]string{
		"setup-server.sh":         "#!/bin/bash\necho setup\n",
		"docker-compose.prod.yml": testCompose,
		"nginx-init.conf":         "server { listen 80; }\n",
		"nginx.conf":              "server { listen 443 ssl; }\n",
	}
	if withSecrets {
		files[".env"] = "POSTGRES_PASSWORD=x\nDOMAIN=portal.example.com\n"
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
	}
	return dir
}

func testConfig(deployDir string) *config.Config {
	return &config.Config{
		Paths: config.PathsConfig{
			DeployDir:  deployDir,
			ProjectDir: filepath.Dir(deployDir),
			RemoteDir:  "/opt/clientportal",
		},
		Deploy: config.DeployConfig{
			Image:             "clientportal:latest",
			Archive:           "clientportal.tar.gz",
			FailurePolicy:     config.PolicyStrict,
			DBWait:            config.DBWaitProbe,
			ProbeAttempts:     3,
			ProbeInitialDelay: time.Millisecond,
			ProbeMaxDelay:     2 * time.Millisecond,
			DBSettleDelay:     15 * time.Second,
			SSLDelay:          30 * time.Second,
			LogTail:           20,
			Services: config.ServicesConfig{
				DB:      "db",
				App:     "app",
				Proxy:   "nginx",
				Certbot: "certbot",
			},
		},
		Cert: config.CertConfig{
			DefaultDomain: "taxportal.nanobyte.ca",
			Email:         "admin@nanobyte.ca",
		},
	}
}

type harness struct {
	session *fakeSession
	local   *fakeLocal
	report  *recordingReporter
	cfg     *config.Config
	sleeps  []time.Duration
	orch    *Orchestrator
}

func newHarness(t *testing.T, withSecrets bool) *harness {
	t.Helper()
	h := &harness{
		session: &fakeSession{},
		local:   &fakeLocal{},
		report:  &recordingReporter{},
		cfg:     testConfig(newDeployDir(t, withSecrets)),
	}
	h.orch = New(h.session, h.local, h.cfg, h.report, WithSleep(func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}))
	return h
}

func exitWith(code int) *domain.CommandResult {
	return &domain.CommandResult{ExitCode: code, Stderr: []byte("failed")}
}

// countSuffix counts commands ending in suffix.
func (s *fakeSession) countSuffix(suffix string) int {
	n := 0
	for _, c := range s.commands {
		if strings.HasSuffix(c, suffix) {
			n++
		}
	}
	return n
}
