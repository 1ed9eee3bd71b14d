package catalog

import (
	"context"
	"strings"

	"github.com/opsgraph/opsgraph/internal/graph"
)

const (
	listNodesLimit = 50
	searchLimit    = 20
)

// buildFunctions assembles the catalog entries. Descriptions are
// written for the oracle: they are the only documentation it sees.
func (c *Catalog) buildFunctions() []*Function {
	return []*Function{
		{
			Name:        "get_node",
			Description: "Get details of a specific infrastructure node by its ID, e.g. 'service:order-service' or 'database:payments-db'.",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"id": {Type: "string", Description: "The node ID in type:name form"},
				},
				Required: []string{"id"},
			},
			run: c.runGetNode,
		},
		{
			Name:        "list_nodes",
			Description: "List nodes, optionally filtered by type and/or a case-insensitive name substring.",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"type":          {Type: "string", Description: "Node type to filter by (service, database, cache, queue, team)"},
					"name_contains": {Type: "string", Description: "Substring to match against node names and IDs"},
				},
			},
			run: c.runListNodes,
		},
		{
			Name:        "search_by_name",
			Description: "Search for nodes whose name or ID contains the query, case-insensitive.",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"query": {Type: "string", Description: "Search term"},
				},
				Required: []string{"query"},
			},
			run: c.runSearchByName,
		},
		{
			Name:        "upstream",
			Description: "Everything this node transitively depends on (its dependencies). Answers 'what does X need to run'.",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"id":        {Type: "string", Description: "Starting node ID"},
					"max_depth": {Type: "integer", Description: "Maximum hops to traverse (default 10, max 25)"},
				},
				Required: []string{"id"},
			},
			run: c.runUpstream,
		},
		{
			Name:        "downstream",
			Description: "Everything that transitively depends on this node (its dependents). Answers 'who is affected by X'.",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"id":        {Type: "string", Description: "Starting node ID"},
					"max_depth": {Type: "integer", Description: "Maximum hops to traverse (default 10, max 25)"},
				},
				Required: []string{"id"},
			},
			run: c.runDownstream,
		},
		{
			Name:        "blast_radius",
			Description: "Impact analysis: the set of nodes that would be affected if this node failed, following dependency edges only.",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"id":        {Type: "string", Description: "The node to analyze"},
					"max_depth": {Type: "integer", Description: "Maximum hops to traverse (default 10, max 25)"},
				},
				Required: []string{"id"},
			},
			run: c.runBlastRadius,
		},
		{
			Name:        "shortest_path",
			Description: "Find the shortest dependency path from one node to another, e.g. how api-gateway reaches payments-db.",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"from":      {Type: "string", Description: "Source node ID"},
					"to":        {Type: "string", Description: "Target node ID"},
					"max_depth": {Type: "integer", Description: "Maximum path length (default 10, max 25)"},
				},
				Required: []string{"from", "to"},
			},
			run: c.runShortestPath,
		},
		{
			Name:        "get_owner",
			Description: "Find the team that owns a service, database or other node.",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"id": {Type: "string", Description: "The node ID to find the owner of"},
				},
				Required: []string{"id"},
			},
			run: c.runGetOwner,
		},
		{
			Name:        "get_team_assets",
			Description: "List every node a team owns. Accepts a team name or a team node ID.",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"team": {Type: "string", Description: "Team name (e.g. 'orders-team') or ID ('team:orders-team')"},
				},
				Required: []string{"team"},
			},
			run: c.runGetTeamAssets,
		},
		{
			Name:        "get_oncall",
			Description: "Get the on-call contact for a node, from its oncall property or the owning team's lead.",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"id": {Type: "string", Description: "The node ID to find on-call for"},
				},
				Required: []string{"id"},
			},
			run: c.runGetOncall,
		},
	}
}

func (c *Catalog) runGetNode(ctx context.Context, args map[string]any) (any, error) {
	node, err := c.store.GetNode(ctx, stringArg(args, "id"))
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (c *Catalog) runListNodes(ctx context.Context, args map[string]any) (any, error) {
	return c.store.ListNodes(ctx, graph.Filter{
		Type:         stringArg(args, "type"),
		NameContains: stringArg(args, "name_contains"),
		Limit:        listNodesLimit,
	})
}

func (c *Catalog) runSearchByName(ctx context.Context, args map[string]any) (any, error) {
	return c.store.ListNodes(ctx, graph.Filter{
		NameContains: stringArg(args, "query"),
		Limit:        searchLimit,
	})
}

func (c *Catalog) runUpstream(ctx context.Context, args map[string]any) (any, error) {
	depth, err := depthArg(args)
	if err != nil {
		return nil, err
	}
	return c.engine.Upstream(ctx, stringArg(args, "id"), depth)
}

func (c *Catalog) runDownstream(ctx context.Context, args map[string]any) (any, error) {
	depth, err := depthArg(args)
	if err != nil {
		return nil, err
	}
	return c.engine.Downstream(ctx, stringArg(args, "id"), depth)
}

func (c *Catalog) runBlastRadius(ctx context.Context, args map[string]any) (any, error) {
	depth, err := depthArg(args)
	if err != nil {
		return nil, err
	}
	return c.engine.BlastRadius(ctx, stringArg(args, "id"), depth)
}

func (c *Catalog) runShortestPath(ctx context.Context, args map[string]any) (any, error) {
	depth, err := depthArg(args)
	if err != nil {
		return nil, err
	}
	return c.engine.ShortestPath(ctx, stringArg(args, "from"), stringArg(args, "to"), depth)
}

// Owner is the result of get_owner: the owning team, if any.
type Owner struct {
	Team  *graph.Node `json:"team,omitempty"`
	Found bool        `json:"found"`
}

func (c *Catalog) runGetOwner(ctx context.Context, args map[string]any) (any, error) {
	return c.owner(ctx, stringArg(args, "id"))
}

func (c *Catalog) owner(ctx context.Context, id string) (Owner, error) {
	node, err := c.store.GetNode(ctx, id)
	if err != nil {
		return Owner{}, err
	}

	neighbors, err := c.store.GetNeighbors(ctx, id, graph.Incoming, []string{graph.EdgeOwns})
	if err != nil {
		return Owner{}, err
	}
	for _, nb := range neighbors {
		if nb.Node.Type == graph.TypeTeam {
			team := nb.Node
			return Owner{Team: &team, Found: true}, nil
		}
	}

	// Fall back to a team property on the node itself.
	if teamName, ok := node.Properties["team"].(string); ok && teamName != "" {
		team, err := c.store.GetNode(ctx, graph.TypeTeam+":"+teamName)
		if err == nil {
			return Owner{Team: &team, Found: true}, nil
		}
	}
	return Owner{Found: false}, nil
}

func (c *Catalog) runGetTeamAssets(ctx context.Context, args map[string]any) (any, error) {
	team := stringArg(args, "team")
	teamID := team
	if !strings.HasPrefix(teamID, graph.TypeTeam+":") {
		teamID = graph.TypeTeam + ":" + team
	}
	if _, err := c.store.GetNode(ctx, teamID); err != nil {
		return nil, err
	}

	neighbors, err := c.store.GetNeighbors(ctx, teamID, graph.Outgoing, []string{graph.EdgeOwns})
	if err != nil {
		return nil, err
	}
	assets := make([]graph.Node, 0, len(neighbors))
	for _, nb := range neighbors {
		assets = append(assets, nb.Node)
	}
	return assets, nil
}

// Oncall is the result of get_oncall.
type Oncall struct {
	Contact string `json:"contact,omitempty"`
	Source  string `json:"source,omitempty"` // "node" or "team lead"
	Found   bool   `json:"found"`
}

func (c *Catalog) runGetOncall(ctx context.Context, args map[string]any) (any, error) {
	id := stringArg(args, "id")
	node, err := c.store.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}

	if oncall, ok := node.Properties["oncall"].(string); ok && oncall != "" {
		return Oncall{Contact: oncall, Source: "node", Found: true}, nil
	}

	owner, err := c.owner(ctx, id)
	if err != nil {
		return Oncall{}, err
	}
	if owner.Found {
		if lead, ok := owner.Team.Properties["lead"].(string); ok && lead != "" {
			return Oncall{Contact: lead, Source: "team lead", Found: true}, nil
		}
	}
	return Oncall{Found: false}, nil
}
