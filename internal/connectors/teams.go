package connectors

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opsgraph/opsgraph/internal/graph"
)

// Teams extracts team nodes and ownership edges from a teams.yaml
// file.
type Teams struct{}

// NewTeams returns the teams connector.
func NewTeams() *Teams { return &Teams{} }

func (c *Teams) Name() string { return "teams" }

type teamsFile struct {
	Teams []teamEntry `yaml:"teams"`
}

type teamEntry struct {
	Name              string   `yaml:"name"`
	Lead              string   `yaml:"lead"`
	SlackChannel      string   `yaml:"slack_channel"`
	PagerdutySchedule string   `yaml:"pagerduty_schedule"`
	Owns              []string `yaml:"owns"`
}

func (c *Teams) Parse(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file teamsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	if len(file.Teams) == 0 {
		return nil, fmt.Errorf("no teams found in %s", path)
	}

	result := &Result{}
	for _, team := range file.Teams {
		if team.Name == "" {
			continue
		}
		teamID := graph.TypeTeam + ":" + team.Name

		props := map[string]any{"owned_count": len(team.Owns)}
		if team.Lead != "" {
			props["lead"] = team.Lead
		}
		if team.SlackChannel != "" {
			props["slack_channel"] = team.SlackChannel
		}
		if team.PagerdutySchedule != "" {
			props["pagerduty_schedule"] = team.PagerdutySchedule
		}

		result.Nodes = append(result.Nodes, graph.Node{
			ID:         teamID,
			Type:       graph.TypeTeam,
			Name:       team.Name,
			Properties: props,
		})

		for _, owned := range team.Owns {
			// The owned item's type is a guess from its name; the
			// ingestor resolves it for real once every connector's
			// nodes are in place.
			targetType := guessOwnedType(owned)
			result.Edges = append(result.Edges, graph.Edge{
				ID:     fmt.Sprintf("edge:%s-owns-%s", team.Name, owned),
				Type:   graph.EdgeOwns,
				Source: teamID,
				Target: targetType + ":" + owned,
			})
		}
	}
	sortEdges(result.Edges)
	return result, nil
}

// guessOwnedType infers a node type from an asset name. The heuristic
// matches the compose connector's fallback so both agree on IDs.
func guessOwnedType(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, "-db") || strings.Contains(lower, "database") {
		return graph.TypeDatabase
	}
	if strings.Contains(lower, "redis") || strings.Contains(lower, "cache") || strings.Contains(lower, "memcached") {
		return graph.TypeCache
	}
	return graph.TypeService
}
