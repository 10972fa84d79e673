// Package config loads the immutable configuration a Manager is
// constructed from: server and local addresses, credentials, and the
// RTP port range to allocate media sessions from.
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
)

// Config is immutable once Load returns. Fields mirror the data model's
// Config: server address, local address, credentials, and an even-stepped
// RTP port range.
type Config struct {
	ServerAddr   string // host:port of the SIP registrar, e.g. "192.0.2.1:5060"
	OwnAddr      string // IP this client is reachable/advertised as (Via, Contact, SDP c= line)
	Username     string
	Password     string
	RTPPortStart int // inclusive, must be even
	RTPPortEnd   int // inclusive
	LogLevel     string
}

// Load populates a Config from command-line flags, then applies
// environment-variable overrides, matching the precedence the rest of
// this codebase's config loaders use (flags first, then env wins).
func Load() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.ServerAddr, "server", "", "SIP server address (host:port)")
	flag.StringVar(&cfg.OwnAddr, "own-addr", "", "local address to advertise (auto-detected if not set)")
	flag.StringVar(&cfg.Username, "username", "", "SIP account username")
	flag.StringVar(&cfg.Password, "password", "", "SIP account password")
	flag.IntVar(&cfg.RTPPortStart, "rtp-port-start", 20304, "first RTP port in the allocation range (even)")
	flag.IntVar(&cfg.RTPPortEnd, "rtp-port-end", 20604, "last RTP port in the allocation range")
	flag.StringVar(&cfg.LogLevel, "loglevel", "debug", "log level (debug, info, warn, error)")
	flag.Parse()

	if v := os.Getenv("SIPUA_SERVER"); v != "" {
		cfg.ServerAddr = v
	}
	if v := os.Getenv("SIPUA_OWN_ADDR"); v != "" {
		cfg.OwnAddr = v
	} else if cfg.OwnAddr == "" {
		if ip := primaryInterfaceIP(); ip != "" {
			cfg.OwnAddr = ip
		}
	}
	if v := os.Getenv("SIPUA_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("SIPUA_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("SIPUA_RTP_PORT_START"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.RTPPortStart = p
		}
	}
	if v := os.Getenv("SIPUA_RTP_PORT_END"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.RTPPortEnd = p
		}
	}
	if v := os.Getenv("SIPUA_LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("config: server address is required")
	}
	if c.Username == "" {
		return fmt.Errorf("config: username is required")
	}
	if c.RTPPortStart%2 != 0 {
		return fmt.Errorf("config: rtp-port-start must be even, got %d", c.RTPPortStart)
	}
	if c.RTPPortEnd < c.RTPPortStart {
		return fmt.Errorf("config: rtp-port-end (%d) must be >= rtp-port-start (%d)", c.RTPPortEnd, c.RTPPortStart)
	}
	return nil
}

// primaryInterfaceIP returns the first non-loopback IPv4 address found,
// used to auto-detect the advertised local address when none is given.
func primaryInterfaceIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}
