package composetest

import (
	"os"

	"gopkg.in/yaml.v3"
)

// extractServiceImages parses a compose manifest into a mapping from
// service name to image reference.
//
// The shape check is deliberately strict: by the time this runs the
// pre-clean compose commands have already exercised docker's own parser
// against the manifest with far better diagnostics, so an unexpected shape
// here means the manifest uses a form this library does not support (an
// extends reference, a build-only service with no image), not a syntax
// error.
func extractServiceImages(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ContractError{Msg: "reading manifest " + path, Err: err}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ContractError{Msg: "parsing manifest " + path, Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, contractErrorf("manifest %s: expected a single YAML document", path)
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, contractErrorf("manifest %s: unexpected root node, expected a mapping", path)
	}

	services := mappingValue(root, "services")
	if services == nil {
		return nil, contractErrorf("manifest %s: no services key", path)
	}
	if services.Kind != yaml.MappingNode {
		return nil, contractErrorf("manifest %s: unexpected services node, expected a mapping", path)
	}

	result := make(map[string]string, len(services.Content)/2)
	for i := 0; i+1 < len(services.Content); i += 2 {
		nameNode, svcNode := services.Content[i], services.Content[i+1]
		if nameNode.Kind != yaml.ScalarNode {
			return nil, contractErrorf("manifest %s: unexpected service name node at line %d", path, nameNode.Line)
		}
		if svcNode.Kind != yaml.MappingNode {
			return nil, contractErrorf("manifest %s: unexpected node for service %s, expected a mapping", path, nameNode.Value)
		}
		image := mappingValue(svcNode, "image")
		if image == nil {
			return nil, contractErrorf("manifest %s: service %s has no image", path, nameNode.Value)
		}
		if image.Kind != yaml.ScalarNode {
			return nil, contractErrorf("manifest %s: unexpected image node for service %s", path, nameNode.Value)
		}
		result[nameNode.Value] = image.Value
	}
	if len(result) == 0 {
		return nil, contractErrorf("manifest %s declares no services", path)
	}
	return result, nil
}

// mappingValue returns the value node for key in a mapping node, or nil.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Kind == yaml.ScalarNode && node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
