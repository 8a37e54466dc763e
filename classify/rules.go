package classify

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"pkt.systems/conspool/schema"
)

// RulesVersion is the fold rules document version this build understands.
const RulesVersion = 1

// Rule is one configured fold rule.
type Rule struct {
	ID               string `yaml:"id"`
	Match            string `yaml:"match"`
	Placeholder      string `yaml:"placeholder,omitempty"`
	AttachToPrevious bool   `yaml:"attach_to_previous,omitempty"`
	Disabled         bool   `yaml:"disabled,omitempty"`
}

// RuleSet is a parsed fold rules document.
type RuleSet struct {
	Version int    `yaml:"rules_version"`
	Rules   []Rule `yaml:"rules"`
}

// ParseRules parses and validates a YAML fold rules document.
func ParseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrInvalidRules, err)
	}
	if rs.Version != RulesVersion {
		return nil, fmt.Errorf("%w: rules_version must be %d, got %d", schema.ErrInvalidRules, RulesVersion, rs.Version)
	}
	seen := make(map[string]struct{}, len(rs.Rules))
	for i, rule := range rs.Rules {
		if strings.TrimSpace(rule.ID) == "" {
			return nil, fmt.Errorf("%w: rule %d has no id", schema.ErrInvalidRules, i)
		}
		if _, dup := seen[rule.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate rule id %q", schema.ErrInvalidRules, rule.ID)
		}
		seen[rule.ID] = struct{}{}
		if rule.Match == "" {
			return nil, fmt.Errorf("%w: rule %q has no match pattern", schema.ErrInvalidRules, rule.ID)
		}
		if _, err := regexp.Compile(rule.Match); err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", schema.ErrInvalidRules, rule.ID, err)
		}
	}
	return &rs, nil
}

// LoadRulesFile reads and parses a fold rules file.
func LoadRulesFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRules(data)
}

// LineClassifiers compiles the enabled rules into fold classifiers.
func (rs *RuleSet) LineClassifiers() []LineClassifier {
	out := make([]LineClassifier, 0, len(rs.Rules))
	for _, rule := range rs.Rules {
		if rule.Disabled {
			continue
		}
		out = append(out, &ruleClassifier{
			id:          schema.ClassifierID(rule.ID),
			pattern:     regexp.MustCompile(rule.Match),
			placeholder: rule.Placeholder,
			attach:      rule.AttachToPrevious,
		})
	}
	return out
}

type ruleClassifier struct {
	id          schema.ClassifierID
	pattern     *regexp.Regexp
	placeholder string
	attach      bool
}

func (r *ruleClassifier) ID() schema.ClassifierID { return r.id }

func (r *ruleClassifier) Enabled(schema.ConsoleInfo) bool { return true }

func (r *ruleClassifier) AttachToPrevious() bool { return r.attach }

func (r *ruleClassifier) ClaimLine(_ int, line string) bool {
	return r.pattern.MatchString(line)
}

func (r *ruleClassifier) Placeholder(lines []string) string {
	if r.placeholder != "" {
		return fmt.Sprintf("%s (%d lines)", r.placeholder, len(lines))
	}
	if len(lines) == 0 {
		return ""
	}
	head := strings.TrimSpace(lines[0])
	if len(head) > 60 {
		head = head[:60]
	}
	if len(lines) == 1 {
		return head
	}
	return fmt.Sprintf("%s (+%d lines)", head, len(lines)-1)
}
