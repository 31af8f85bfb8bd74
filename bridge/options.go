package bridge

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Default settings of the bridge command.
const (
	DefaultURL            = "http://localhost:12341/mcp"
	DefaultRequestTimeout = 60 * time.Second
	DefaultProbeTimeout   = 2000
	DefaultStartupTimeout = 120000
	DefaultLogLevel       = "info"
)

// Options are the command line settings. Values left empty fall back to the
// config file and then to the defaults above.
type Options struct {
	URL              string         `short:"u" long:"url" env:"MCP_BRIDGE_URL" description:"remote Streamable HTTP endpoint (default: http://localhost:12341/mcp)" yaml:"url"`
	ConfigURL        string         `short:"c" long:"config" env:"MCP_BRIDGE_CONFIG" description:"YAML config file or URL" yaml:"-"`
	BootstrapMethod  string         `long:"bootstrap-method" description:"method that opens a session (default: initialize)" yaml:"bootstrapMethod"`
	RequestTimeout   *time.Duration `long:"request-timeout" description:"bound on waiting for POST response headers, 0 disables (default: 60s)" yaml:"requestTimeout"`
	ReconnectDelay   time.Duration  `long:"reconnect-delay" description:"wait before reopening the notification stream (default: 1s)" yaml:"reconnectDelay"`
	Token            string         `long:"token" env:"MCP_BRIDGE_TOKEN" description:"static bearer token" yaml:"token"`
	OAuth2ConfigURL  string         `long:"oauth2-config" env:"MCP_BRIDGE_OAUTH2_CONFIG" description:"oauth2 client config file for the interactive browser flow" yaml:"oauth2Config"`
	EncryptionKey    string         `short:"k" long:"key" description:"encryption key of the oauth2 config" yaml:"-"`
	Headers          []string       `short:"H" long:"header" description:"extra request header as 'Name: value', repeatable" yaml:"headers"`
	NoSpawn          bool           `long:"no-spawn" description:"never start the backing server" yaml:"noSpawn"`
	ServerCommand    []string       `long:"server-command" description:"backing server command, repeat for each argument" yaml:"serverCommand"`
	NoRepair         bool           `long:"no-repair" description:"skip the one-time project config repair" yaml:"noRepair"`
	ProbeTimeoutMs   int            `long:"probe-timeout-ms" env:"OH_MY_AG_BRIDGE_PROBE_TIMEOUT_MS" description:"reachability probe timeout in ms (default: 2000)" yaml:"probeTimeoutMs"`
	StartupTimeoutMs int            `long:"startup-timeout-ms" env:"OH_MY_AG_BRIDGE_STARTUP_TIMEOUT_MS" description:"backing server startup timeout in ms (default: 120000)" yaml:"startupTimeoutMs"`
	MetricsAddr      string         `long:"metrics-addr" description:"serve Prometheus metrics on this address" yaml:"metricsAddr"`
	LogLevel         string         `long:"log-level" env:"LOG_LEVEL" description:"all, debug, info, warn, error or none (default: info)" yaml:"logLevel"`
	ReplyOnFailure   bool           `long:"reply-on-failure" description:"answer failed requests with a JSON-RPC error" yaml:"replyOnFailure"`
}

// Merge fills every empty field of o from base.
func (o *Options) Merge(base *Options) {
	if base == nil {
		return
	}
	if o.URL == "" {
		o.URL = base.URL
	}
	if o.BootstrapMethod == "" {
		o.BootstrapMethod = base.BootstrapMethod
	}
	if o.RequestTimeout == nil {
		o.RequestTimeout = base.RequestTimeout
	}
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = base.ReconnectDelay
	}
	if o.Token == "" {
		o.Token = base.Token
	}
	if o.OAuth2ConfigURL == "" {
		o.OAuth2ConfigURL = base.OAuth2ConfigURL
	}
	if len(o.Headers) == 0 {
		o.Headers = base.Headers
	}
	o.NoSpawn = o.NoSpawn || base.NoSpawn
	if len(o.ServerCommand) == 0 {
		o.ServerCommand = base.ServerCommand
	}
	o.NoRepair = o.NoRepair || base.NoRepair
	if o.ProbeTimeoutMs == 0 {
		o.ProbeTimeoutMs = base.ProbeTimeoutMs
	}
	if o.StartupTimeoutMs == 0 {
		o.StartupTimeoutMs = base.StartupTimeoutMs
	}
	if o.MetricsAddr == "" {
		o.MetricsAddr = base.MetricsAddr
	}
	if o.LogLevel == "" {
		o.LogLevel = base.LogLevel
	}
	o.ReplyOnFailure = o.ReplyOnFailure || base.ReplyOnFailure
}

// Init applies defaults to fields that are still empty.
func (o *Options) Init() {
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.RequestTimeout == nil {
		timeout := DefaultRequestTimeout
		o.RequestTimeout = &timeout
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.ProbeTimeoutMs <= 0 {
		o.ProbeTimeoutMs = DefaultProbeTimeout
	}
	if o.StartupTimeoutMs <= 0 {
		o.StartupTimeoutMs = DefaultStartupTimeout
	}
	if o.LogLevel == "" {
		o.LogLevel = DefaultLogLevel
	}
}

// Validate checks the settings after Init.
func (o *Options) Validate() error {
	u, err := url.Parse(o.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url %q: expected http(s)://host[:port]/path", o.URL)
	}
	if o.PostTimeout() < 0 {
		return fmt.Errorf("invalid request timeout %s", o.PostTimeout())
	}
	if o.Token != "" && o.OAuth2ConfigURL != "" {
		return fmt.Errorf("token and oauth2 config are mutually exclusive")
	}
	_, err = o.HeaderMap()
	return err
}

// HeaderMap parses the extra headers.
func (o *Options) HeaderMap() (map[string]string, error) {
	if len(o.Headers) == 0 {
		return nil, nil
	}
	ret := make(map[string]string, len(o.Headers))
	for _, header := range o.Headers {
		name, value, ok := strings.Cut(header, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected 'Name: value'", header)
		}
		ret[name] = strings.TrimSpace(value)
	}
	return ret, nil
}

// PostTimeout returns the bound on waiting for POST response headers, 0 means unbounded.
func (o *Options) PostTimeout() time.Duration {
	if o.RequestTimeout == nil {
		return 0
	}
	return *o.RequestTimeout
}

// OAuth2Config returns the oauth2 config URL with the encryption key, if any.
func (o *Options) OAuth2Config() string {
	if o.EncryptionKey == "" {
		return o.OAuth2ConfigURL
	}
	return o.OAuth2ConfigURL + "|" + o.EncryptionKey
}

// ProbeTimeout returns the reachability probe timeout.
func (o *Options) ProbeTimeout() time.Duration {
	return time.Duration(o.ProbeTimeoutMs) * time.Millisecond
}

// StartupTimeout returns how long the backing server may take to become reachable.
func (o *Options) StartupTimeout() time.Duration {
	return time.Duration(o.StartupTimeoutMs) * time.Millisecond
}
