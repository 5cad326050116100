package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/superpool/dispute-service/internal/domain"
	"github.com/superpool/dispute-service/internal/lifecycle"
)

// policyFile is the on-disk escalation policy:
//
//	thresholds:
//	  critical: 1h
//	  high: 4h
//	  medium: 24h
//	  low: 72h
type policyFile struct {
	Thresholds map[string]string `yaml:"thresholds"`
}

// LoadPolicyFile reads escalation thresholds from a YAML file. The result
// is not validated; Config.Validate does that once env overrides apply.
func LoadPolicyFile(path string) (lifecycle.Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read escalation policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML escalation policy document.
func ParsePolicy(data []byte) (lifecycle.Thresholds, error) {
	var doc policyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse escalation policy: %w", err)
	}
	thresholds := lifecycle.Thresholds{}
	for name, raw := range doc.Thresholds {
		priority := domain.TicketPriority(strings.ToUpper(strings.TrimSpace(name)))
		if !priority.Valid() {
			return nil, fmt.Errorf("escalation policy: unknown priority %q", name)
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("escalation policy: threshold for %s: %w", priority, err)
		}
		thresholds[priority] = d
	}
	return thresholds, nil
}
