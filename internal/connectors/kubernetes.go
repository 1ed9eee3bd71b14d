package connectors

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opsgraph/opsgraph/internal/graph"
)

// Kubernetes extracts Deployment resources from a multi-document
// manifest. It supplements other connectors: its nodes merge
// K8s-specific metadata (replicas, images, resource limits) onto
// services that compose already described, and add calls edges found
// in container environments.
type Kubernetes struct{}

// NewKubernetes returns the kubernetes connector.
func NewKubernetes() *Kubernetes { return &Kubernetes{} }

func (c *Kubernetes) Name() string { return "kubernetes" }

type k8sManifest struct {
	Kind     string `yaml:"kind"`
	Metadata struct {
		Name      string            `yaml:"name"`
		Namespace string            `yaml:"namespace"`
		Labels    map[string]string `yaml:"labels"`
	} `yaml:"metadata"`
	Spec struct {
		Replicas int `yaml:"replicas"`
		Template struct {
			Spec struct {
				Containers []k8sContainer `yaml:"containers"`
			} `yaml:"spec"`
		} `yaml:"template"`
	} `yaml:"spec"`
}

type k8sContainer struct {
	Image string `yaml:"image"`
	Ports []struct {
		ContainerPort int `yaml:"containerPort"`
	} `yaml:"ports"`
	Resources struct {
		Limits   map[string]string `yaml:"limits"`
		Requests map[string]string `yaml:"requests"`
	} `yaml:"resources"`
	Env []struct {
		Name      string `yaml:"name"`
		Value     string `yaml:"value"`
		ValueFrom any    `yaml:"valueFrom"`
	} `yaml:"env"`
}

func (c *Kubernetes) Parse(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result := &Result{}
	decoder := yaml.NewDecoder(f)
	for {
		var manifest k8sManifest
		err := decoder.Decode(&manifest)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid yaml: %w", err)
		}
		if !strings.EqualFold(manifest.Kind, "Deployment") || manifest.Metadata.Name == "" {
			// Service resources carry networking detail only; the
			// deployment already names the workload.
			continue
		}
		node, edges := c.parseDeployment(&manifest)
		result.Nodes = append(result.Nodes, node)
		result.Edges = append(result.Edges, edges...)
	}
	if len(result.Nodes) == 0 {
		return nil, fmt.Errorf("no deployments found in %s", path)
	}
	sortEdges(result.Edges)
	return result, nil
}

func (c *Kubernetes) parseDeployment(m *k8sManifest) (graph.Node, []graph.Edge) {
	name := m.Metadata.Name
	nodeID := graph.TypeService + ":" + name

	props := map[string]any{"k8s_managed": true}
	if m.Metadata.Namespace != "" {
		props["namespace"] = m.Metadata.Namespace
	}
	if team := m.Metadata.Labels["team"]; team != "" {
		props["team"] = team
	}
	if app := m.Metadata.Labels["app"]; app != "" {
		props["app_label"] = app
	}
	if m.Spec.Replicas > 0 {
		props["replicas"] = m.Spec.Replicas
	}

	var edges []graph.Edge
	if containers := m.Spec.Template.Spec.Containers; len(containers) > 0 {
		primary := containers[0]
		if primary.Image != "" {
			props["image"] = primary.Image
		}
		if len(primary.Ports) > 0 {
			props["container_port"] = primary.Ports[0].ContainerPort
		}
		if len(primary.Resources.Limits) > 0 {
			props["resource_limits"] = toAnyMap(primary.Resources.Limits)
		}
		if len(primary.Resources.Requests) > 0 {
			props["resource_requests"] = toAnyMap(primary.Resources.Requests)
		}

		for _, env := range primary.Env {
			if env.ValueFrom != nil || env.Value == "" {
				continue // secret-sourced values say nothing about topology
			}
			if !strings.HasSuffix(env.Name, "_URL") || env.Name == "DATABASE_URL" {
				continue
			}
			target := extractK8sHost(env.Value)
			if target == "" || target == name {
				continue
			}
			edges = append(edges, graph.Edge{
				ID:         fmt.Sprintf("edge:%s-calls-%s", name, target),
				Type:       graph.EdgeCalls,
				Source:     nodeID,
				Target:     graph.TypeService + ":" + target,
				Properties: map[string]any{"via": env.Name, "source": "k8s"},
			})
		}
	}

	return graph.Node{ID: nodeID, Type: graph.TypeService, Name: name, Properties: props}, edges
}

// k8sHostPattern matches both cluster DNS names
// (payment-service.ecommerce.svc.cluster.local) and bare hosts.
var k8sHostPattern = regexp.MustCompile(`//([a-zA-Z0-9_-]+)(?:\.[\w.-]+)?:`)

func extractK8sHost(url string) string {
	if match := k8sHostPattern.FindStringSubmatch(url); match != nil {
		return match[1]
	}
	return ""
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		out[key] = value
	}
	return out
}
