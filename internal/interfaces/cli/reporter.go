package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/saurabhbilakhia/taxportal/internal/application/pipeline"
)

// consoleReporter relays progress and remote output to the operator.
type consoleReporter struct {
	out   io.Writer
	title cases.Caser
}

func newConsoleReporter(out io.Writer) *consoleReporter {
	return &consoleReporter{out: out, title: cases.Title(language.English)}
}

func (r *consoleReporter) Section(title string) {
	fmt.Fprintf(r.out, "\n%s\n\n", TitleStyle.Render("=== "+title+" ==="))
}

func (r *consoleReporter) Info(msg string) {
	fmt.Fprintln(r.out, msg)
}

func (r *consoleReporter) Command(cmd string) {
	fmt.Fprintln(r.out, CommandStyle.Render("Running: ")+cmd)
}

func (r *consoleReporter) Output(stdout, stderr []byte) {
	if len(stdout) > 0 {
		fmt.Fprintln(r.out, strings.TrimRight(string(stdout), "\n"))
	}
	if len(stderr) > 0 {
		fmt.Fprintln(r.out, WarningStyle.Render("STDERR: ")+strings.TrimRight(string(stderr), "\n"))
	}
}

func (r *consoleReporter) Upload(localPath, remotePath string) {
	fmt.Fprintf(r.out, "Uploading %s -> %s\n", localPath, remotePath)
}

func (r *consoleReporter) Step(name string, outcome pipeline.Outcome) {
	label := r.title.String(name)
	switch {
	case outcome.Skipped:
		fmt.Fprintln(r.out, HelpStyle.Render("- "+label+" (skipped)"))
	case outcome.Err != nil:
		fmt.Fprintln(r.out, ErrorStyle.Render("✗ "+label+": ")+outcome.Err.Error())
	default:
		fmt.Fprintf(r.out, "%s %s\n", SuccessStyle.Render("✓ "+label), HelpStyle.Render(outcome.Duration.Round(100*time.Millisecond).String()))
	}
}

func (r *consoleReporter) Success(msg string) {
	fmt.Fprintln(r.out, SuccessStyle.Render(msg))
}

func (r *consoleReporter) Failure(msg string, hints ...string) {
	fmt.Fprintln(r.out, ErrorStyle.Render(msg))
	for i, h := range hints {
		fmt.Fprintf(r.out, "%d. %s\n", i+1, h)
	}
}
