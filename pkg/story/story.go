package story

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultOpening is the first line of every new session's history.
const DefaultOpening = "You awaken in the smoking remains of your escape pod, half-buried in black sand. " +
	"Sirens from the wrecked station above flicker in and out, and your suit's HUD blinks a single warning: LOW POWER."

// DefaultPersona is the system prompt that sets genre and narrator behavior.
const DefaultPersona = `You are the narrator of "Echoes of the Void", a gritty science-fiction text adventure. ` +
	`Describe the world in second person, present tense. Keep each reply to one or two short paragraphs. ` +
	`React only to what the player attempts; never act for the player and never break character. ` +
	`Reward clever ideas, make danger feel real, and nudge the player toward their objectives without solving them.`

// DefaultObjectives are the fixed narrative goals for a new session.
var DefaultObjectives = []string{
	"Restore power to your suit",
	"Locate the station's distress beacon",
	"Discover what destroyed the Helios relay",
}

// Story holds the fixed narrative content shared by every session.
type Story struct {
	Title      string   `yaml:"title" json:"title"`
	Opening    string   `yaml:"opening" json:"opening"`
	Persona    string   `yaml:"persona" json:"persona"`
	Objectives []string `yaml:"objectives" json:"objectives"`
}

// Default returns the built-in story.
func Default() *Story {
	objectives := make([]string, len(DefaultObjectives))
	copy(objectives, DefaultObjectives)
	return &Story{
		Title:      "Echoes of the Void",
		Opening:    DefaultOpening,
		Persona:    DefaultPersona,
		Objectives: objectives,
	}
}

// LoadFile reads a YAML story file. Fields left empty fall back to the defaults.
func LoadFile(path string) (*Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read story file: %w", err)
	}

	var s Story
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse story file %s: %w", path, err)
	}
	s.fillDefaults()

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid story file %s: %w", path, err)
	}
	return &s, nil
}

func (s *Story) fillDefaults() {
	d := Default()
	if strings.TrimSpace(s.Title) == "" {
		s.Title = d.Title
	}
	if strings.TrimSpace(s.Opening) == "" {
		s.Opening = d.Opening
	}
	if strings.TrimSpace(s.Persona) == "" {
		s.Persona = d.Persona
	}
	if len(s.Objectives) == 0 {
		s.Objectives = d.Objectives
	}
}

// Validate checks that the story can seed a session.
func (s *Story) Validate() error {
	if strings.TrimSpace(s.Opening) == "" {
		return fmt.Errorf("opening narration is required")
	}
	for i, o := range s.Objectives {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("objective %d is empty", i+1)
		}
	}
	return nil
}
