package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/saurabhbilakhia/taxportal/internal/application/deployment"
	"github.com/saurabhbilakhia/taxportal/internal/config"
	"github.com/saurabhbilakhia/taxportal/internal/constants"
	"github.com/saurabhbilakhia/taxportal/internal/domain"
	"github.com/saurabhbilakhia/taxportal/internal/domain/contract"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/local"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/lock"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/logger"
)

var Version = "dev"

// Deps are the collaborators a run needs beyond configuration.
type Deps struct {
	Out   io.Writer
	Err   io.Writer
	Dial  SessionFactory
	Local contract.LocalRunner
	Sleep deployment.SleepFunc
	Viper *viper.Viper
}

func defaultDeps() *Deps {
	return &Deps{
		Out:  os.Stdout,
		Err:  os.Stderr,
		Dial: dialSession,
	}
}

type rootOptions struct {
	configFile string
	envFile    string
}

// pflag name -> config key
var flagBindings = map[string]string{
	"host":                "ssh.host",
	"port":                "ssh.port",
	"user":                "ssh.user",
	"password":            "ssh.password",
	"key-file":            "ssh.key_file",
	"agent":               "ssh.use_agent",
	"host-key-policy":     "ssh.host_key_policy",
	"known-hosts":         "ssh.known_hosts",
	"accept-new-host-key": "ssh.accept_new_host_key",
	"fingerprint":         "ssh.fingerprint",
	"connect-timeout":     "ssh.connect_timeout",
	"command-timeout":     "ssh.command_timeout",
	"deploy-dir":          "paths.deploy_dir",
	"project-dir":         "paths.project_dir",
	"remote-dir":          "paths.remote_dir",
	"failure-policy":      "deploy.failure_policy",
	"db-wait":             "deploy.db_wait",
	"ssl-delay":           "deploy.ssl_delay",
	"domain":              "cert.default_domain",
	"email":               "cert.email",
	"staging":             "cert.staging",
}

func NewRootCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = defaultDeps()
	}
	if deps.Dial == nil {
		deps.Dial = dialSession
	}
	if deps.Viper == nil {
		deps.Viper = viper.New()
	}

	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     constants.AppName + " [flags] <command>",
		Short:   "Provision and deploy the client portal over SSH",
		Long:    "Portaldeploy provisions a remote host, ships the client portal image and manages its TLS certificate.",
		Version: Version,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				printUsage(deps.Out)
				return nil
			}
			op, err := deployment.ParseOperation(args[0])
			if err != nil {
				fmt.Fprintln(deps.Err, ErrorStyle.Render("Unknown command: "+args[0]))
				printMenu(deps.Err)
				return err
			}
			return run(cmd.Context(), deps, opts, cmd, op)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Optional YAML config file")
	flags.StringVar(&opts.envFile, "env-file", "", "Operator env file (default <deploy-dir>/"+constants.OperatorEnv+" when present)")

	flags.String("host", "", "Remote host")
	flags.Int("port", domain.DefaultSSHPort, "Remote SSH port")
	flags.String("user", "root", "Remote user")
	flags.String("password", "", "SSH password, or env:NAME / file:PATH reference")
	flags.String("key-file", "", "Private key file")
	flags.Bool("agent", true, "Use ssh-agent from SSH_AUTH_SOCK")
	flags.String("host-key-policy", "known-hosts", "Host key verification: known-hosts, fingerprint or insecure")
	flags.String("known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	flags.Bool("accept-new-host-key", false, "Record the key of a host missing from known_hosts")
	flags.String("fingerprint", "", "Pinned SHA256 host key fingerprint")
	flags.Duration("connect-timeout", domain.DefaultConnectTimeout, "SSH connect timeout")
	flags.Duration("command-timeout", domain.DefaultCommandTimeout, "Per-command timeout")
	flags.String("deploy-dir", ".", "Local directory holding the deployment files")
	flags.String("project-dir", "", "Docker build context (default parent of deploy dir)")
	flags.String("remote-dir", constants.RemoteBaseDir, "Remote directory")
	flags.String("failure-policy", string(config.PolicyStrict), "strict or best-effort")
	flags.String("db-wait", string(config.DBWaitProbe), "Database wait mode: probe or sleep")
	flags.Duration("ssl-delay", domain.DefaultSSLDelay, "Delay between deploy and ssl in 'all'")
	flags.String("domain", constants.DefaultDomain, "Certificate domain when .env has no DOMAIN line")
	flags.String("email", constants.DefaultEmail, "Certificate contact email")
	flags.Bool("staging", false, "Use the Let's Encrypt staging environment")

	for name, key := range flagBindings {
		_ = deps.Viper.BindPFlag(key, flags.Lookup(name))
	}

	return cmd
}

func run(ctx context.Context, deps *Deps, opts *rootOptions, cmd *cobra.Command, op deployment.Operation) error {
	if err := loadEnvFile(cmd, opts); err != nil {
		return err
	}

	cfg, err := config.Load(deps.Viper, opts.configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx = logger.WithHost(ctx, cfg.SSH.Host)
	log := logger.FromContext(ctx)

	if op != deployment.OpStatus {
		runLock := lock.New(cfg.Paths.DeployDir)
		if err := runLock.Acquire(); err != nil {
			return err
		}
		defer runLock.Release()
		log.Debug("deploy lock acquired", "path", runLock.Path())
	}

	fmt.Fprintf(deps.Out, "Connecting to %s@%s...\n", cfg.SSH.User, cfg.SSH.Host)
	session, err := deps.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()
	fmt.Fprintln(deps.Out, SuccessStyle.Render("Connected successfully!"))

	localRunner := deps.Local
	if localRunner == nil {
		localRunner = local.NewRunner(deps.Out, deps.Err)
	}

	var orchOpts []deployment.Option
	if deps.Sleep != nil {
		orchOpts = append(orchOpts, deployment.WithSleep(deps.Sleep))
	}
	orch := deployment.New(session, localRunner, cfg, newConsoleReporter(deps.Out), orchOpts...)

	err = orch.Run(ctx, op)
	if log.Enabled(slog.LevelDebug) {
		for _, s := range logger.Timings() {
			log.Debug("step timing", "step", s.Name, "runs", s.Runs, "failed", s.Failed, "duration", s.Duration)
		}
	}
	return err
}

func loadEnvFile(cmd *cobra.Command, opts *rootOptions) error {
	if opts.envFile != "" {
		return config.LoadEnvFile(opts.envFile, true)
	}
	deployDir, _ := cmd.Flags().GetString("deploy-dir")
	return config.LoadEnvFile(filepath.Join(deployDir, constants.OperatorEnv), false)
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s [flags] <command>\n\n", constants.AppName)
	printMenu(w)
	fmt.Fprintf(w, "\n%s\n", HelpStyle.Render("Run '"+constants.AppName+" --help' for flags."))
}

func printMenu(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	for _, info := range deployment.Operations {
		fmt.Fprintln(w, MenuItemStyle.Render(fmt.Sprintf("%-8s - %s", info.Op, info.Description)))
	}
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand(nil).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, domain.ErrUnknownOp) {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+strings.TrimSpace(err.Error()))
		}
		stop()
		os.Exit(1)
	}
}
