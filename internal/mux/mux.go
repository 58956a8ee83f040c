// Package mux loads the multiplex configuration file that drives a run.
package mux

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dabtools/epgdc/internal/spi"
)

// Ensemble is the target multiplex identity.
type Ensemble struct {
	ECC        uint16 `yaml:"ecc"`
	EID        uint16 `yaml:"eid"`
	Label      string `yaml:"label"`
	ShortLabel string `yaml:"short_label"`
}

// ServiceEntry is one service carried on the ensemble.
type ServiceEntry struct {
	SID   uint16 `yaml:"sid"`
	SCIdS uint8  `yaml:"scids"`
	// FQDN optionally pins the service provider domain, bypassing the
	// bearer-derived DNS lookup.
	FQDN string `yaml:"fqdn"`
}

// Multiplex is the parsed configuration.
type Multiplex struct {
	Ensemble Ensemble       `yaml:"ensemble"`
	Services []ServiceEntry `yaml:"services"`
}

// Load reads and validates a multiplex configuration file.
func Load(path string) (*Multiplex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read multiplex config: %w", err)
	}
	var m Multiplex
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse multiplex config %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("multiplex config %s: %w", path, err)
	}
	return &m, nil
}

func (m *Multiplex) validate() error {
	if m.Ensemble.ECC == 0 || m.Ensemble.ECC > 0xff {
		return fmt.Errorf("ensemble ecc %#x out of range (8 bit, non-zero)", m.Ensemble.ECC)
	}
	if m.Ensemble.EID == 0 {
		return fmt.Errorf("ensemble eid must be set")
	}
	if len(m.Ensemble.Label) > 16 {
		return fmt.Errorf("ensemble label %q exceeds 16 characters", m.Ensemble.Label)
	}
	if len(m.Ensemble.ShortLabel) > 8 {
		return fmt.Errorf("ensemble short label %q exceeds 8 characters", m.Ensemble.ShortLabel)
	}
	if len(m.Services) == 0 {
		return fmt.Errorf("no services configured")
	}
	for i, s := range m.Services {
		if s.SID == 0 {
			return fmt.Errorf("service %d: sid must be set", i)
		}
		if s.SCIdS > 0xf {
			return fmt.Errorf("service %d: scids %#x out of range (4 bit)", i, s.SCIdS)
		}
	}
	return nil
}

// EnsembleIdentity returns the ensemble identity fields.
func (m *Multiplex) EnsembleIdentity() (ecc uint8, eid uint16, label, shortLabel string) {
	return uint8(m.Ensemble.ECC), m.Ensemble.EID, m.Ensemble.Label, m.Ensemble.ShortLabel
}

// Bearers returns one bearer per configured service.
func (m *Multiplex) Bearers() []spi.Bearer {
	out := make([]spi.Bearer, 0, len(m.Services))
	for _, s := range m.Services {
		out = append(out, spi.Bearer{
			ECC:   uint8(m.Ensemble.ECC),
			EID:   m.Ensemble.EID,
			SID:   s.SID,
			SCIdS: s.SCIdS,
		})
	}
	return out
}

// StaticFQDN returns the pinned provider domain for a bearer, if any.
func (m *Multiplex) StaticFQDN(b spi.Bearer) string {
	for _, s := range m.Services {
		if s.SID == b.SID && s.SCIdS == b.SCIdS {
			return s.FQDN
		}
	}
	return ""
}
