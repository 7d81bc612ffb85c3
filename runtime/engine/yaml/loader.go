package yaml

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BDNK1/lowflow/runtime"
	goyaml "gopkg.in/yaml.v3"
)

// FlowLoader loads flow definitions from YAML files. JSON documents are
// accepted as well since they parse as YAML.
type FlowLoader struct{}

func NewFlowLoader() *FlowLoader {
	return &FlowLoader{}
}

func (l *FlowLoader) Extensions() []string {
	return []string{"*.yaml", "*.yml", "*.json"}
}

func (l *FlowLoader) Load(filePath string) (runtime.Flow, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return runtime.Flow{}, fmt.Errorf("error reading flow file: %w", err)
	}
	flow, err := Parse(data)
	if err != nil {
		return runtime.Flow{}, fmt.Errorf("error loading %s: %w", filePath, err)
	}
	if flow.ID == "" {
		base := filepath.Base(filePath)
		flow.ID = base[:len(base)-len(filepath.Ext(base))]
	}
	return flow, nil
}

// Parse decodes one flow document.
func Parse(data []byte) (runtime.Flow, error) {
	var flow runtime.Flow
	if err := goyaml.Unmarshal(data, &flow); err != nil {
		return runtime.Flow{}, fmt.Errorf("error unmarshalling flow: %w", err)
	}
	if len(flow.Nodes) == 0 {
		return runtime.Flow{}, fmt.Errorf("flow %q has no nodes", flow.ID)
	}
	return flow, nil
}

// LoadDir loads every flow file of a directory, ordered by file name.
// Flow ids must be unique across the directory.
func LoadDir(loader runtime.FlowLoader, dir string) ([]*runtime.Flow, error) {
	var files []string
	for _, ext := range loader.Extensions() {
		matches, err := filepath.Glob(filepath.Join(dir, ext))
		if err != nil {
			return nil, fmt.Errorf("error reading directory: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	seen := make(map[string]string, len(files))
	flows := make([]*runtime.Flow, 0, len(files))
	for _, file := range files {
		flow, err := loader.Load(file)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[flow.ID]; ok {
			return nil, fmt.Errorf("flow %s is defined in both %s and %s", flow.ID, prev, file)
		}
		seen[flow.ID] = file
		flows = append(flows, &flow)
	}
	return flows, nil
}
