package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/varuny677/RequirementGath-feature2.1/internal/logger"
)

// cloudPlaceholder in a hint is replaced with the run's cloud provider.
const cloudPlaceholder = "{cloud}"

// TopicHints maps section titles to the retrieval topics appended to a
// section query. Defaults can be overridden per deployment with a YAML file
// pointed at by TOPIC_HINTS_PATH.
type TopicHints struct {
	byTitle map[string][]string
}

func defaultTopicHints() map[string][]string {
	return map[string][]string{
		"BUSINESS STRUCTURE": {
			cloudPlaceholder + " Organizations account structure strategies",
			"Multi-account architecture patterns",
			"Environment isolation and separation",
		},
		"Compliance and legal requirements": {
			"Regulatory compliance frameworks",
			"Data residency and sovereignty",
			"Security and audit controls",
		},
		"Audit and Log Requirements": {
			"Centralized logging strategies",
			"Audit trail requirements",
			"Log retention and analysis",
		},
		"NETWORK REQUIREMENTS": {
			"Network architecture and connectivity",
			"VPN and hybrid cloud networking",
			"Network security and segmentation",
		},
		"DISASTER RECOVERY": {
			"Backup and recovery strategies",
			"Business continuity planning",
			"RTO and RPO requirements",
		},
	}
}

// NewTopicHints loads hints from TOPIC_HINTS_PATH when set, merging the file
// over the built-in defaults. A missing env var yields defaults only.
func NewTopicHints(log *logger.Logger) (*TopicHints, error) {
	hints := &TopicHints{byTitle: defaultTopicHints()}

	path := strings.TrimSpace(os.Getenv("TOPIC_HINTS_PATH"))
	if path == "" {
		return hints, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic hints file: %w", err)
	}
	var overrides map[string][]string
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse topic hints file: %w", err)
	}
	for title, topics := range overrides {
		hints.byTitle[title] = topics
	}
	if log != nil {
		log.Info("Loaded topic hint overrides", "path", path, "sections", len(overrides))
	}
	return hints, nil
}

// ForSection returns the retrieval topics for a section title with the cloud
// provider substituted in. Unknown titles fall back to generic topics.
func (t *TopicHints) ForSection(sectionTitle, cloudProvider string) []string {
	topics, ok := t.byTitle[sectionTitle]
	if !ok {
		return []string{
			fmt.Sprintf("%s best practices for %s", cloudProvider, strings.ToLower(sectionTitle)),
			"Implementation guidelines and recommendations",
			"Security and compliance considerations",
		}
	}
	out := make([]string, len(topics))
	for i, topic := range topics {
		out[i] = strings.ReplaceAll(topic, cloudPlaceholder, cloudProvider)
	}
	return out
}
