package timezone

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy is the per-deployment allow-list of timezone identities a scraping
// session may report. There is deliberately no process-wide default: the
// policy is constructed explicitly and passed into each Verifier.
type Policy struct {
	// Canonical is the identity the deployment normalizes to, usually "UTC".
	Canonical string `yaml:"canonical"`
	// Equivalents maps signal labels that mean the canonical identity
	// (e.g. "GMT", "Etc/UTC", "0") onto it.
	Equivalents []string `yaml:"equivalents"`
	// Accepted maps additional allowed labels onto the IANA zone or fixed
	// offset ("+05:30") used to convert their display times to UTC.
	Accepted map[string]string `yaml:"accepted"`
}

// PolicyFile is the YAML document shape for LoadPolicy.
type PolicyFile struct {
	Timezone Policy `yaml:"timezone"`
}

// DefaultPolicy allows only the canonical UTC identity and its common
// spellings. Deployments widen it via the policy file.
func DefaultPolicy() Policy {
	return Policy{
		Canonical:   "UTC",
		Equivalents: []string{"GMT", "Etc/UTC", "UTC+0", "0", "+0", "+00:00"},
	}
}

// LoadPolicy reads the timezone policy from a YAML file.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read timezone policy: %w", err)
	}
	var doc PolicyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Policy{}, fmt.Errorf("parse timezone policy %s: %w", path, err)
	}
	p := doc.Timezone
	if p.Canonical == "" {
		p.Canonical = "UTC"
	}
	if _, err := p.locations(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// resolve maps a raw signal value onto an allowed identity, or "" when the
// value is not on the allow-list. Matching is case-insensitive on trimmed
// labels.
func (p Policy) resolve(signal string) string {
	label := strings.TrimSpace(signal)
	if label == "" {
		return ""
	}
	if strings.EqualFold(label, p.Canonical) {
		return p.Canonical
	}
	for _, eq := range p.Equivalents {
		if strings.EqualFold(label, eq) {
			return p.Canonical
		}
	}
	for accepted := range p.Accepted {
		if strings.EqualFold(label, accepted) {
			return accepted
		}
	}
	return ""
}

// Location returns the *time.Location a verified identity converts with.
// The canonical identity and its equivalents are always UTC.
func (p Policy) Location(identity string) (*time.Location, error) {
	if identity == p.Canonical {
		return time.UTC, nil
	}
	spec, ok := p.Accepted[identity]
	if !ok {
		return nil, fmt.Errorf("timezone %q is not on the allow-list", identity)
	}
	return parseLocation(identity, spec)
}

// locations eagerly resolves every accepted zone so a bad policy file fails
// at load time, not mid-session.
func (p Policy) locations() (map[string]*time.Location, error) {
	out := make(map[string]*time.Location, len(p.Accepted))
	for identity, spec := range p.Accepted {
		loc, err := parseLocation(identity, spec)
		if err != nil {
			return nil, err
		}
		out[identity] = loc
	}
	return out, nil
}

var offsetPattern = regexp.MustCompile(`^([+-])(\d{1,2})(?::(\d{2}))?$`)

func parseLocation(identity, spec string) (*time.Location, error) {
	if m := offsetPattern.FindStringSubmatch(strings.TrimSpace(spec)); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		seconds := hours*3600 + minutes*60
		if m[1] == "-" {
			seconds = -seconds
		}
		return time.FixedZone(identity, seconds), nil
	}
	loc, err := time.LoadLocation(spec)
	if err != nil {
		return nil, fmt.Errorf("timezone policy %q: %w", identity, err)
	}
	return loc, nil
}
