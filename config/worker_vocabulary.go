package config

import (
	"fmt"
	"os"

	"sponsor_worker/core/service/keyword"
	"sponsor_worker/core/service/priority"
	"sponsor_worker/pkg/apperr"

	"gopkg.in/yaml.v3"
)

// vocabularyFile is the YAML layout of VOCABULARY_FILE. Omitted lists keep
// their built-in defaults.
type vocabularyFile struct {
	keyword.Vocabulary `yaml:",inline"`
	priority.Config    `yaml:",inline"`
}

func (c *Config) applyVocabularyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperr.ConfigError(fmt.Sprintf("read vocabulary file %s", path)).WithError(err)
	}
	return c.applyVocabulary(data)
}

func (c *Config) applyVocabulary(data []byte) error {
	var f vocabularyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return apperr.ConfigError("parse vocabulary file").WithError(err)
	}

	override(&c.Vocabulary.Keywords, f.Keywords)
	override(&c.Vocabulary.Primary, f.Primary)
	override(&c.Vocabulary.SpamPatterns, f.SpamPatterns)
	override(&c.Vocabulary.AutomationIndicators, f.AutomationIndicators)
	if len(f.Variations) > 0 {
		c.Vocabulary.Variations = f.Variations
	}

	override(&c.Priority.UrgentWords, f.UrgentWords)
	override(&c.Priority.MediumWords, f.MediumWords)
	override(&c.Priority.ImportantDomains, f.ImportantDomains)
	override(&c.Priority.VIPWords, f.VIPWords)
	return nil
}

func override(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}
