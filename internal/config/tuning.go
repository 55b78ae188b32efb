package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Tuning is the subset of settings an operator may change between runs.
// Nil fields are left untouched.
type Tuning struct {
	MaxSpeed         *int     `json:"max_speed"`
	TurnGain         *float64 `json:"turn_gain"`
	ObstacleDistance *int     `json:"obstacle_distance"`
	EnableMotors     *bool    `json:"enable_motors"`
}

func TuningOf(cfg Config) Tuning {
	s := cfg.Settings
	return Tuning{
		MaxSpeed:         &s.MaxSpeed,
		TurnGain:         &s.TurnGain,
		ObstacleDistance: &s.ObstacleDistance,
		EnableMotors:     s.EnableMotors,
	}
}

// UpdateTuning edits the settings section of the config file at path in
// place, keeping the rest of the document and its comments, validates the
// result and saves it atomically.
func UpdateTuning(path string, t Tuning) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Config{}, err
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return Config{}, fmt.Errorf("config root must be a mapping")
	}
	settings := mappingChild(doc.Content[0], "settings")

	if t.MaxSpeed != nil {
		setScalar(settings, "max_speed", "!!int", strconv.Itoa(*t.MaxSpeed))
	}
	if t.TurnGain != nil {
		setScalar(settings, "turn_gain", "!!float", strconv.FormatFloat(*t.TurnGain, 'g', -1, 64))
	}
	if t.ObstacleDistance != nil {
		setScalar(settings, "obstacle_distance", "!!int", strconv.Itoa(*t.ObstacleDistance))
	}
	if t.EnableMotors != nil {
		setScalar(settings, "enable_motors", "!!bool", strconv.FormatBool(*t.EnableMotors))
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return Config{}, err
	}
	cfg, err := parse(path, out)
	if err != nil {
		return Config{}, err
	}
	if err := writeAtomic(path, out); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mappingChild returns the mapping stored under key in m, creating it.
func mappingChild(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			v := m.Content[i+1]
			if v.Kind != yaml.MappingNode {
				*v = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			}
			return v
		}
	}
	v := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
	return v
}

func setScalar(m *yaml.Node, key, tag, value string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			v := m.Content[i+1]
			v.Kind, v.Tag, v.Value, v.Style = yaml.ScalarNode, tag, value, 0
			v.Content = nil
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value},
	)
}
