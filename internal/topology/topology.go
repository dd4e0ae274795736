// Package topology loads emulated-network topology descriptions.
//
// A topology file is YAML:
//
//	name: triangle
//	switches: [s1]
//	hosts:
//	  - name: h1
//	    ip: 10.0.0.1
//	    switch: s1
//	    link_latency_ms: 1
package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Host is one emulated host attached to a switch.
type Host struct {
	Name          string  `yaml:"name"`
	IP            string  `yaml:"ip"`
	Switch        string  `yaml:"switch"`
	LinkLatencyMS float64 `yaml:"link_latency_ms"`
}

// Topology describes an emulated network: hosts attached to switches.
type Topology struct {
	Name     string   `yaml:"name"`
	Switches []string `yaml:"switches"`
	Hosts    []Host   `yaml:"hosts"`
}

// Parse decodes and validates a topology document.
func Parse(data []byte) (Topology, error) {
	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return Topology{}, fmt.Errorf("parse topology: %w", err)
	}
	if err := topo.validate(); err != nil {
		return Topology{}, err
	}
	return topo, nil
}

func (t Topology) validate() error {
	if len(t.Hosts) == 0 {
		return fmt.Errorf("topology %q has no hosts", t.Name)
	}
	switches := make(map[string]bool, len(t.Switches))
	for _, sw := range t.Switches {
		switches[sw] = true
	}
	seenName := make(map[string]bool, len(t.Hosts))
	seenIP := make(map[string]bool, len(t.Hosts))
	for _, h := range t.Hosts {
		if h.Name == "" || h.IP == "" {
			return fmt.Errorf("topology %q: host entries require name and ip", t.Name)
		}
		if seenName[h.Name] {
			return fmt.Errorf("topology %q: duplicate host %q", t.Name, h.Name)
		}
		if seenIP[h.IP] {
			return fmt.Errorf("topology %q: duplicate ip %q", t.Name, h.IP)
		}
		seenName[h.Name], seenIP[h.IP] = true, true
		if h.Switch != "" && !switches[h.Switch] {
			return fmt.Errorf("topology %q: host %q references unknown switch %q", t.Name, h.Name, h.Switch)
		}
	}
	return nil
}

// HostByName returns the host with the given name.
func (t Topology) HostByName(name string) (Host, bool) {
	for _, h := range t.Hosts {
		if h.Name == name {
			return h, true
		}
	}
	return Host{}, false
}

// HostByIP returns the host with the given address.
func (t Topology) HostByIP(ip string) (Host, bool) {
	for _, h := range t.Hosts {
		if h.IP == ip {
			return h, true
		}
	}
	return Host{}, false
}

// HasSwitch reports whether the switch id is declared.
func (t Topology) HasSwitch(id string) bool {
	for _, sw := range t.Switches {
		if sw == id {
			return true
		}
	}
	return false
}

// PathLatency is the round-trip latency between two hosts through their
// shared switch.
func (t Topology) PathLatency(src, dst Host) time.Duration {
	return linkLatency(src) + linkLatency(dst)
}

func linkLatency(h Host) time.Duration {
	if h.LinkLatencyMS <= 0 {
		return time.Millisecond
	}
	return time.Duration(h.LinkLatencyMS * float64(time.Millisecond))
}

// Summary renders the topology in the prompt-facing text form.
func (t Topology) Summary() string {
	var b strings.Builder
	b.WriteString("Network topology summary:\n")
	for _, h := range t.Hosts {
		sw := h.Switch
		if sw == "" && len(t.Switches) > 0 {
			sw = t.Switches[0]
		}
		fmt.Fprintf(&b, "Host %s | IP: %s | Switch: %s\n", h.Name, h.IP, sw)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Resolver maps topology refs to parsed topologies from a directory of
// YAML files (<ref>.yaml).
type Resolver struct {
	dir string
}

// NewResolver creates a resolver rooted at dir.
func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve loads the topology named by ref.
func (r *Resolver) Resolve(ref string) (Topology, error) {
	if ref == "" {
		return Topology{}, fmt.Errorf("topology ref is required")
	}
	if strings.Contains(ref, "/") || strings.Contains(ref, "..") {
		return Topology{}, fmt.Errorf("invalid topology ref %q", ref)
	}
	path := filepath.Join(r.dir, ref+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return Topology{}, fmt.Errorf("read topology %q: %w", ref, err)
	}
	return Parse(data)
}
