// Package repair fixes project configurations the backing server refuses to load.
package repair

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"

	"github.com/rs/zerolog"
	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

const languagesKey = "languages"

// DefaultLanguages are written to project configs missing a languages key.
var DefaultLanguages = []string{"python", "typescript", "dart", "terraform"}

// Service repairs serena project configurations.
type Service struct {
	fs        afs.Service
	logger    zerolog.Logger
	languages []string
}

type globalConfig struct {
	Projects []string `yaml:"projects"`
}

// Repair reads <home>/.serena/serena_config.yml and adds the languages key to
// every listed project config lacking it. It returns the repaired files.
func (s *Service) Repair(ctx context.Context, home string) ([]string, error) {
	globalURL := path.Join(home, ".serena", "serena_config.yml")
	if ok, _ := s.fs.Exists(ctx, globalURL); !ok {
		return nil, nil
	}
	data, err := s.fs.DownloadWithURL(ctx, globalURL)
	if err != nil {
		return nil, err
	}
	config := &globalConfig{}
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse %v: %w", globalURL, err)
	}
	var repaired []string
	for _, project := range config.Projects {
		projectURL := path.Join(project, ".serena", "project.yml")
		fixed, err := s.repairProject(ctx, projectURL)
		if err != nil {
			s.logger.Warn().Err(err).Str("config", projectURL).Msg("failed to repair project config")
			continue
		}
		if fixed {
			s.logger.Info().Str("config", projectURL).Strs(languagesKey, s.languages).Msg("added missing languages key")
			repaired = append(repaired, projectURL)
		}
	}
	return repaired, nil
}

func (s *Service) repairProject(ctx context.Context, URL string) (bool, error) {
	if ok, _ := s.fs.Exists(ctx, URL); !ok {
		return false, nil
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return false, err
	}
	doc := &yaml.Node{}
	if err = yaml.Unmarshal(data, doc); err != nil {
		return false, err
	}
	if len(doc.Content) == 0 {
		doc = &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return false, fmt.Errorf("expected a mapping at the top of %v", URL)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == languagesKey {
			return false, nil
		}
	}
	languages := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, language := range s.languages {
		languages.Content = append(languages.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: language})
	}
	root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: languagesKey}, languages)

	buf := &bytes.Buffer{}
	encoder := yaml.NewEncoder(buf)
	encoder.SetIndent(2)
	if err = encoder.Encode(doc); err != nil {
		return false, err
	}
	if err = encoder.Close(); err != nil {
		return false, err
	}
	if err = s.fs.Upload(ctx, URL, os.FileMode(0o644), buf); err != nil {
		return false, err
	}
	return true, nil
}

// New creates a repair service.
func New(logger zerolog.Logger) *Service {
	return &Service{fs: afs.New(), logger: logger, languages: DefaultLanguages}
}
