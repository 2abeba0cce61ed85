package constants

const (
	AppName       = "portaldeploy"
	EnvPrefix     = "PORTALDEPLOY"
	RemoteBaseDir = "/opt/clientportal"
	ImageName     = "clientportal:latest"
	ImageArchive  = "clientportal.tar.gz"
	DefaultDomain = "taxportal.nanobyte.ca"
	DefaultEmail  = "admin@nanobyte.ca"
	LockFileName  = ".portaldeploy.lock"
	OperatorEnv   = "deploy.env"
)

// Local artifacts expected in the deploy directory.
const (
	SetupScript      = "setup-server.sh"
	ComposeProdFile  = "docker-compose.prod.yml"
	NginxInitConf    = "nginx-init.conf"
	NginxSSLConf     = "nginx.conf"
	SecretsFile      = ".env"
	RemoteCompose    = "docker-compose.yml"
	RemoteNginxConf  = "nginx.conf"
	CertbotWebroot   = "/var/www/certbot"
	DomainKeyPrefix  = "DOMAIN="
	DefaultLogTail   = 20
	ScriptPermission = "+x"
)

// Database readiness probes; %s is the shell-escaped db service name.
const (
	DBReadyProbeFormat  = "docker compose exec -T %s pg_isready"
	DBHealthProbeFormat = `docker inspect --format '{{.State.Health.Status}}' "$(docker compose ps -q %s)"`
	HealthStatusHealthy = "healthy"
)

const (
	ServiceDB      = "db"
	ServiceApp     = "app"
	ServiceProxy   = "nginx"
	ServiceCertbot = "certbot"
)

const (
	FilePermissionOwnerRW = 0600
	DirPermissionOwner    = 0700
)
