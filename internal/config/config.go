package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/saurabhbilakhia/taxportal/internal/constants"
	"github.com/saurabhbilakhia/taxportal/internal/domain"
)

// FailurePolicy decides whether a failed deploy step stops the run.
type FailurePolicy string

const (
	PolicyStrict     FailurePolicy = "strict"
	PolicyBestEffort FailurePolicy = "best-effort"
)

// DBWaitMode selects how deploy waits for the database after starting it.
type DBWaitMode string

const (
	DBWaitProbe DBWaitMode = "probe"
	DBWaitSleep DBWaitMode = "sleep"
)

type SSHConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	KeyFile          string        `mapstructure:"key_file"`
	Passphrase       string        `mapstructure:"passphrase"`
	UseAgent         bool          `mapstructure:"use_agent"`
	HostKeyPolicy    string        `mapstructure:"host_key_policy"`
	KnownHosts       string        `mapstructure:"known_hosts"`
	AcceptNewHostKey bool          `mapstructure:"accept_new_host_key"`
	Fingerprint      string        `mapstructure:"fingerprint"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout   time.Duration `mapstructure:"command_timeout"`
}

type PathsConfig struct {
	DeployDir  string `mapstructure:"deploy_dir"`
	ProjectDir string `mapstructure:"project_dir"`
	RemoteDir  string `mapstructure:"remote_dir"`
}

type ServicesConfig struct {
	DB      string `mapstructure:"db"`
	App     string `mapstructure:"app"`
	Proxy   string `mapstructure:"proxy"`
	Certbot string `mapstructure:"certbot"`
}

type DeployConfig struct {
	Image             string         `mapstructure:"image"`
	Archive           string         `mapstructure:"archive"`
	FailurePolicy     FailurePolicy  `mapstructure:"failure_policy"`
	DBWait            DBWaitMode     `mapstructure:"db_wait"`
	DBProbe           string         `mapstructure:"db_probe"` // empty: derived from the db service
	ProbeAttempts     int            `mapstructure:"probe_attempts"`
	ProbeInitialDelay time.Duration  `mapstructure:"probe_initial_delay"`
	ProbeMaxDelay     time.Duration  `mapstructure:"probe_max_delay"`
	DBSettleDelay     time.Duration  `mapstructure:"db_settle_delay"`
	SSLDelay          time.Duration  `mapstructure:"ssl_delay"`
	LogTail           int            `mapstructure:"log_tail"`
	Services          ServicesConfig `mapstructure:"services"`
}

type CertConfig struct {
	DefaultDomain string `mapstructure:"default_domain"`
	Email         string `mapstructure:"email"`
	Staging       bool   `mapstructure:"staging"`
}

type Config struct {
	SSH    SSHConfig    `mapstructure:"ssh"`
	Paths  PathsConfig  `mapstructure:"paths"`
	Deploy DeployConfig `mapstructure:"deploy"`
	Cert   CertConfig   `mapstructure:"cert"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("ssh.host", "")
	v.SetDefault("ssh.port", domain.DefaultSSHPort)
	v.SetDefault("ssh.user", "root")
	v.SetDefault("ssh.password", "")
	v.SetDefault("ssh.key_file", "")
	v.SetDefault("ssh.passphrase", "")
	v.SetDefault("ssh.use_agent", true)
	v.SetDefault("ssh.host_key_policy", "known-hosts")
	v.SetDefault("ssh.known_hosts", "")
	v.SetDefault("ssh.accept_new_host_key", false)
	v.SetDefault("ssh.fingerprint", "")
	v.SetDefault("ssh.connect_timeout", domain.DefaultConnectTimeout)
	v.SetDefault("ssh.command_timeout", domain.DefaultCommandTimeout)

	v.SetDefault("paths.deploy_dir", ".")
	v.SetDefault("paths.project_dir", "")
	v.SetDefault("paths.remote_dir", constants.RemoteBaseDir)

	v.SetDefault("deploy.image", constants.ImageName)
	v.SetDefault("deploy.archive", constants.ImageArchive)
	v.SetDefault("deploy.failure_policy", string(PolicyStrict))
	v.SetDefault("deploy.db_wait", string(DBWaitProbe))
	v.SetDefault("deploy.db_probe", "")
	v.SetDefault("deploy.probe_attempts", domain.DefaultProbeMaxAttempts)
	v.SetDefault("deploy.probe_initial_delay", domain.DefaultProbeInitialDelay)
	v.SetDefault("deploy.probe_max_delay", domain.DefaultProbeMaxDelay)
	v.SetDefault("deploy.db_settle_delay", domain.DefaultDBSettleDelay)
	v.SetDefault("deploy.ssl_delay", domain.DefaultSSLDelay)
	v.SetDefault("deploy.log_tail", constants.DefaultLogTail)
	v.SetDefault("deploy.services.db", constants.ServiceDB)
	v.SetDefault("deploy.services.app", constants.ServiceApp)
	v.SetDefault("deploy.services.proxy", constants.ServiceProxy)
	v.SetDefault("deploy.services.certbot", constants.ServiceCertbot)

	v.SetDefault("cert.default_domain", constants.DefaultDomain)
	v.SetDefault("cert.email", constants.DefaultEmail)
	v.SetDefault("cert.staging", false)
}

// LoadEnvFile loads operator settings from a dotenv file into the process
// environment without overriding variables that are already set. A missing
// file is only an error when required is true.
func LoadEnvFile(file string, required bool) error {
	if file == "" {
		return nil
	}
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("%w: env file %s: %w", domain.ErrConfigInvalid, file, err)
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("%w: env file %s: %w", domain.ErrConfigInvalid, file, err)
	}
	return nil
}

// Load reads configuration from defaults, an optional config file and
// PORTALDEPLOY_* environment variables (plus any flags bound to v).
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", domain.ErrConfigInvalid, configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigInvalid, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	deployDir, err := filepath.Abs(c.Paths.DeployDir)
	if err != nil {
		return fmt.Errorf("%w: deploy dir: %w", domain.ErrConfigInvalid, err)
	}
	c.Paths.DeployDir = deployDir

	if c.Paths.ProjectDir == "" {
		c.Paths.ProjectDir = filepath.Dir(deployDir)
	} else if c.Paths.ProjectDir, err = filepath.Abs(c.Paths.ProjectDir); err != nil {
		return fmt.Errorf("%w: project dir: %w", domain.ErrConfigInvalid, err)
	}

	c.Deploy.FailurePolicy = FailurePolicy(strings.ToLower(string(c.Deploy.FailurePolicy)))
	c.Deploy.DBWait = DBWaitMode(strings.ToLower(string(c.Deploy.DBWait)))
	return nil
}

// Validate checks the settings needed to open a session and run operations.
func (c *Config) Validate() error {
	var errs []error

	if c.SSH.Host == "" {
		errs = append(errs, domain.RequiredField("ssh.host"))
	}
	if c.SSH.User == "" {
		errs = append(errs, domain.RequiredField("ssh.user"))
	}
	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: ssh.port %d out of range", domain.ErrConfigInvalid, c.SSH.Port))
	}
	if c.SSH.Password == "" && c.SSH.KeyFile == "" && !c.SSH.UseAgent {
		errs = append(errs, fmt.Errorf("%w: one of ssh.password, ssh.key_file or ssh.use_agent is required", domain.ErrConfigInvalid))
	}
	switch strings.ToLower(c.SSH.HostKeyPolicy) {
	case "", "known-hosts", "insecure":
	case "fingerprint":
		if c.SSH.Fingerprint == "" {
			errs = append(errs, domain.RequiredField("ssh.fingerprint"))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: ssh.host_key_policy %q", domain.ErrConfigInvalid, c.SSH.HostKeyPolicy))
	}

	if !path.IsAbs(c.Paths.RemoteDir) {
		errs = append(errs, fmt.Errorf("%w: paths.remote_dir %q must be absolute", domain.ErrConfigInvalid, c.Paths.RemoteDir))
	}

	switch c.Deploy.FailurePolicy {
	case PolicyStrict, PolicyBestEffort:
	default:
		errs = append(errs, fmt.Errorf("%w: deploy.failure_policy %q (want strict or best-effort)", domain.ErrConfigInvalid, c.Deploy.FailurePolicy))
	}
	switch c.Deploy.DBWait {
	case DBWaitProbe:
		if c.Deploy.ProbeAttempts < 1 {
			errs = append(errs, fmt.Errorf("%w: deploy.probe_attempts must be at least 1", domain.ErrConfigInvalid))
		}
	case DBWaitSleep:
	default:
		errs = append(errs, fmt.Errorf("%w: deploy.db_wait %q (want probe or sleep)", domain.ErrConfigInvalid, c.Deploy.DBWait))
	}
	if c.Deploy.Image == "" {
		errs = append(errs, domain.RequiredField("deploy.image"))
	}
	if c.Deploy.Archive == "" || strings.ContainsAny(c.Deploy.Archive, `/\`) {
		errs = append(errs, fmt.Errorf("%w: deploy.archive must be a plain file name", domain.ErrConfigInvalid))
	}
	if c.Deploy.Services.DB == "" {
		errs = append(errs, domain.RequiredField("deploy.services.db"))
	}
	if c.Deploy.LogTail < 1 {
		errs = append(errs, fmt.Errorf("%w: deploy.log_tail must be positive", domain.ErrConfigInvalid))
	}
	if c.Cert.DefaultDomain == "" {
		errs = append(errs, domain.RequiredField("cert.default_domain"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return c.resolveSecrets()
}

// LocalPath joins name onto the deploy directory.
func (c *Config) LocalPath(name string) string {
	return filepath.Join(c.Paths.DeployDir, name)
}

// RemotePath joins name onto the remote directory using forward slashes.
func (c *Config) RemotePath(name string) string {
	return path.Join(c.Paths.RemoteDir, name)
}
