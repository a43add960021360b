/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/netmonitor/pkg/logger"
)

var (
	errInvalidInterval    = errors.New("monitor interval must be positive")
	errInvalidProbeMethod = errors.New("unknown probe method")
	errProbeTimeout       = errors.New("probe timeout must be between 1ms and 5s")
	errInvalidConcurrency = errors.New("concurrency must be between 1 and 50")
	errInvalidThresholds  = errors.New("warning threshold must not exceed critical threshold")
	errInvalidHostNumber  = errors.New("host numbers must be within 1-254")
	errInvalidStatsSource = errors.New("unknown stats source")
	errMissingDatabase    = errors.New("database host and name are required")
	errMissingNATSURL     = errors.New("nats url is required")
)

const (
	ProbeMethodAuto    = "auto"
	ProbeMethodICMP    = "icmp"
	ProbeMethodTCP     = "tcp"
	ProbeMethodCommand = "command"
)

// MaxProbeTimeout bounds a single probe attempt.
const MaxProbeTimeout = 5 * time.Second

// MaxConcurrency caps the probes in flight during discovery and stats collection.
const MaxConcurrency = 50

// Config is the configuration of the netmonitor service.
type Config struct {
	ListenAddr string          `json:"listen_addr"`
	Logging    *logger.Config  `json:"logging"`
	Monitor    MonitorConfig   `json:"monitor"`
	Discovery  DiscoveryConfig `json:"discovery"`
	Probe      ProbeConfig     `json:"probe"`
	Identify   IdentifyConfig  `json:"identify"`
	Stats      StatsConfig     `json:"stats"`
	Alerts     AlertThresholds `json:"alerts"`
	PiNode     PiNodeConfig    `json:"pinode"`
	Retention  RetentionConfig `json:"retention"`
	API        APIConfig       `json:"api"`
	Database   *DatabaseConfig `json:"database,omitempty"`
	NATS       *NATSConfig     `json:"nats,omitempty"`
}

type MonitorConfig struct {
	Interval  Duration `json:"interval"`
	AutoStart bool     `json:"auto_start"`
}

type DiscoveryConfig struct {
	// Subnets are /24 prefixes such as "192.168.1". Empty means auto-detect.
	Subnets       []string `json:"subnets"`
	LikelyHosts   []int    `json:"likely_hosts"`
	RangeStart    int      `json:"range_start"`
	RangeEnd      int      `json:"range_end"`
	MaxCandidates int      `json:"max_candidates"`
	Concurrency   int      `json:"concurrency"`
	Attempts      int      `json:"attempts"`
}

type ProbeConfig struct {
	Method     string   `json:"method"`
	Timeout    Duration `json:"timeout"`
	Privileged bool     `json:"privileged"`
	TCPPorts   []int    `json:"tcp_ports"`
}

type SNMPConfig struct {
	Enabled   bool     `json:"enabled"`
	Community string   `json:"community"`
	Port      uint16   `json:"port"`
	Timeout   Duration `json:"timeout"`
	Retries   int      `json:"retries"`
}

type IdentifyConfig struct {
	ReverseDNS bool       `json:"reverse_dns"`
	DNSTimeout Duration   `json:"dns_timeout"`
	SNMP       SNMPConfig `json:"snmp"`
}

const (
	StatsSourceSynthetic = "synthetic"
	StatsSourceSNMP      = "snmp"
)

type StatsConfig struct {
	Attempts         int     `json:"attempts"`
	Concurrency      int     `json:"concurrency"`
	Source           string  `json:"source"`
	SpikeProbability float64 `json:"spike_probability"`
	IfIndex          int     `json:"if_index"`
}

type AlertThresholds struct {
	LatencyWarningMs    float64 `json:"latency_warning_ms"`
	LatencyCriticalMs   float64 `json:"latency_critical_ms"`
	UtilizationWarning  float64 `json:"utilization_warning"`
	UtilizationCritical float64 `json:"utilization_critical"`
	PacketLossWarning   float64 `json:"packet_loss_warning"`
}

type PiNodeConfig struct {
	HeartbeatInterval Duration `json:"heartbeat_interval"`
	MissedHeartbeats  int      `json:"missed_heartbeats"`
}

// Timeout is how long a node may stay silent before it is considered offline.
func (c PiNodeConfig) Timeout() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Duration(c.MissedHeartbeats)
}

type RetentionConfig struct {
	MaxAge   Duration `json:"max_age"`
	Interval Duration `json:"interval"`
}

type APIConfig struct {
	PingRatePerSecond float64  `json:"ping_rate_per_second"`
	PingBurst         int      `json:"ping_burst"`
	AllowedOrigins    []string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string            `json:"host"`
	Port            int               `json:"port"`
	Database        string            `json:"database"`
	Username        string            `json:"username"`
	Password        string            `json:"password"`
	SSLMode         string            `json:"ssl_mode"`
	ApplicationName string            `json:"application_name"`
	MaxConnections  int32             `json:"max_connections"`
	MinConnections  int32             `json:"min_connections"`
	MaxConnLifetime Duration          `json:"max_conn_lifetime"`
	ExtraParams     map[string]string `json:"extra_params,omitempty"`
}

type NATSConfig struct {
	URL      string   `json:"url"`
	Stream   string   `json:"stream"`
	Domain   string   `json:"domain,omitempty"`
	Subjects []string `json:"subjects,omitempty"`
}

// DefaultLikelyHosts are probed before the sequential range: gateways first,
// then addresses home routers commonly hand out first.
var DefaultLikelyHosts = []int{1, 254, 100, 101, 102}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":5000"
	}

	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = Duration(30 * time.Second)
	}

	c.Discovery.applyDefaults()
	c.Probe.applyDefaults()

	if c.Identify.DNSTimeout == 0 {
		c.Identify.DNSTimeout = Duration(time.Second)
	}

	c.Identify.SNMP.applyDefaults()
	c.Stats.applyDefaults()
	c.Alerts.applyDefaults()

	if c.PiNode.HeartbeatInterval == 0 {
		c.PiNode.HeartbeatInterval = Duration(30 * time.Second)
	}

	if c.PiNode.MissedHeartbeats == 0 {
		c.PiNode.MissedHeartbeats = 3
	}

	if c.Retention.MaxAge == 0 {
		c.Retention.MaxAge = Duration(7 * 24 * time.Hour)
	}

	if c.Retention.Interval == 0 {
		c.Retention.Interval = Duration(time.Hour)
	}

	if c.API.PingRatePerSecond == 0 {
		c.API.PingRatePerSecond = 2
	}

	if c.API.PingBurst == 0 {
		c.API.PingBurst = 4
	}

	if c.NATS != nil && c.NATS.Stream == "" {
		c.NATS.Stream = "netmonitor-events"
	}
}

func (d *DiscoveryConfig) applyDefaults() {
	if len(d.LikelyHosts) == 0 {
		d.LikelyHosts = append([]int(nil), DefaultLikelyHosts...)
	}

	if d.RangeStart == 0 {
		d.RangeStart = 2
	}

	if d.RangeEnd == 0 {
		d.RangeEnd = 30
	}

	if d.MaxCandidates == 0 {
		d.MaxCandidates = 25
	}

	if d.Concurrency == 0 {
		d.Concurrency = 32
	}

	if d.Attempts == 0 {
		d.Attempts = 1
	}
}

func (p *ProbeConfig) applyDefaults() {
	if p.Method == "" {
		p.Method = ProbeMethodAuto
	}

	if p.Timeout == 0 {
		p.Timeout = Duration(2 * time.Second)
	}

	if len(p.TCPPorts) == 0 {
		p.TCPPorts = []int{80, 443, 22}
	}
}

func (s *SNMPConfig) applyDefaults() {
	if s.Community == "" {
		s.Community = "public"
	}

	if s.Port == 0 {
		s.Port = 161
	}

	if s.Timeout == 0 {
		s.Timeout = Duration(time.Second)
	}
}

func (s *StatsConfig) applyDefaults() {
	if s.Attempts == 0 {
		s.Attempts = 3
	}

	if s.Concurrency == 0 {
		s.Concurrency = 16
	}

	if s.Source == "" {
		s.Source = StatsSourceSynthetic
	}

	if s.SpikeProbability == 0 {
		s.SpikeProbability = 0.05
	}

	if s.IfIndex == 0 {
		s.IfIndex = 1
	}
}

func (a *AlertThresholds) applyDefaults() {
	if a.LatencyWarningMs == 0 {
		a.LatencyWarningMs = 100
	}

	if a.LatencyCriticalMs == 0 {
		a.LatencyCriticalMs = 200
	}

	if a.UtilizationWarning == 0 {
		a.UtilizationWarning = 80
	}

	if a.UtilizationCritical == 0 {
		a.UtilizationCritical = 95
	}

	if a.PacketLossWarning == 0 {
		a.PacketLossWarning = 50
	}
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return errInvalidInterval
	}

	switch c.Probe.Method {
	case ProbeMethodAuto, ProbeMethodICMP, ProbeMethodTCP, ProbeMethodCommand:
	default:
		return fmt.Errorf("%w: %q", errInvalidProbeMethod, c.Probe.Method)
	}

	if c.Probe.Timeout <= 0 || c.Probe.Timeout.Std() > MaxProbeTimeout {
		return errProbeTimeout
	}

	for _, n := range []int{c.Discovery.Concurrency, c.Stats.Concurrency} {
		if n <= 0 || n > MaxConcurrency {
			return fmt.Errorf("%w: %d", errInvalidConcurrency, n)
		}
	}

	for _, host := range c.Discovery.LikelyHosts {
		if host < 1 || host > 254 {
			return fmt.Errorf("%w: %d", errInvalidHostNumber, host)
		}
	}

	if c.Discovery.RangeStart < 1 || c.Discovery.RangeEnd > 254 || c.Discovery.RangeStart > c.Discovery.RangeEnd {
		return fmt.Errorf("%w: range %d-%d", errInvalidHostNumber, c.Discovery.RangeStart, c.Discovery.RangeEnd)
	}

	switch c.Stats.Source {
	case StatsSourceSynthetic, StatsSourceSNMP:
	default:
		return fmt.Errorf("%w: %q", errInvalidStatsSource, c.Stats.Source)
	}

	if c.Alerts.LatencyWarningMs > c.Alerts.LatencyCriticalMs ||
		c.Alerts.UtilizationWarning > c.Alerts.UtilizationCritical {
		return errInvalidThresholds
	}

	if c.Database != nil && (c.Database.Host == "" || c.Database.Database == "") {
		return errMissingDatabase
	}

	if c.NATS != nil && c.NATS.URL == "" {
		return errMissingNATSURL
	}

	return nil
}

// AgentConfig is the configuration of the Pi node agent.
type AgentConfig struct {
	ServerURL         string         `json:"server_url"`
	Name              string         `json:"name"`
	Address           string         `json:"address"`
	Location          string         `json:"location"`
	HeartbeatInterval Duration       `json:"heartbeat_interval"`
	MaxFailures       int            `json:"max_failures"`
	GatewayTarget     string         `json:"gateway_target"`
	InternetTarget    string         `json:"internet_target"`
	Probe             ProbeConfig    `json:"probe"`
	Logging           *logger.Config `json:"logging"`
}

var errMissingServerURL = errors.New("server_url is required")

func (c *AgentConfig) ApplyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:5000"
	}

	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = Duration(30 * time.Second)
	}

	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}

	if c.InternetTarget == "" {
		c.InternetTarget = "8.8.8.8"
	}

	c.Probe.applyDefaults()
}

func (c *AgentConfig) Validate() error {
	if c.ServerURL == "" {
		return errMissingServerURL
	}

	if c.HeartbeatInterval <= 0 {
		return errInvalidInterval
	}

	return nil
}
