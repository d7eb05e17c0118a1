// Package project defines the in-memory shape an external project loader
// populates: composition metadata, the pattern/song order, the device
// connection list and the bind map source, before any of it is handed to
// internal/graph, internal/pattern, internal/bind or internal/voice to
// build a playable session. Parsing Kunquat's own p_*.json project format
// is out of scope (spec §1 Non-goals) — this package is the contract that
// format would fill in, plus a YAML-based fixture constructor for tests.
package project

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ConnectionDef is one edge of the device graph, named by device id and
// port name on each end.
type ConnectionDef struct {
	FromDevice string `yaml:"from_device"`
	FromPort   string `yaml:"from_port"`
	ToDevice   string `yaml:"to_device"`
	ToPort     string `yaml:"to_port"`
}

// DeviceDef declares one node of the graph: its id, a processor type tag
// the caller's device factory resolves, and its port names.
type DeviceDef struct {
	ID       string   `yaml:"id"`
	Type     string   `yaml:"type"`
	Effect   string   `yaml:"effect"` // for type "effect": chorus|delay|distortion|compressor|reverb|eq3|eq5
	InPorts  []string `yaml:"in_ports"`
	OutPorts []string `yaml:"out_ports"`
}

// EventDef is one scheduled column entry in source form: a position
// expressed as (beats, remainder) over tstamp.Beat, an event name and a
// literal argument the loader decodes per the name's declared parameter
// type.
type EventDef struct {
	Beats int64       `yaml:"beats"`
	Rem   int64       `yaml:"rem"`
	Name  string      `yaml:"name"`
	Arg   interface{} `yaml:"arg"`
}

// ColumnDef is one channel's (or the global track's) event list.
type ColumnDef struct {
	Events []EventDef `yaml:"events"`
}

// PatternDef is one pattern: its length in (beats, rem) and one column per
// channel plus the global column.
type PatternDef struct {
	ID            string      `yaml:"id"`
	LengthBeats   int64       `yaml:"length_beats"`
	LengthRem     int64       `yaml:"length_rem"`
	Global        ColumnDef   `yaml:"global"`
	Channels      []ColumnDef `yaml:"channels"`
}

// SongEntry is one step of the song-level playback order: which pattern,
// and how many times to repeat it before moving on.
type SongEntry struct {
	PatternID string `yaml:"pattern_id"`
	Repeat    int    `yaml:"repeat"`
}

// BindTargetDef, BindCascadeDef and BindDef are one bind-map entry in
// source form (target, cascade and trigger), matching internal/bind's
// builder shape before expression parsing.
type BindTargetDef struct {
	EventName     string `yaml:"event_name"`
	Arg           string `yaml:"arg"`
	ChannelOffset int    `yaml:"channel_offset"`
}

type BindCascadeDef struct {
	Constraint string          `yaml:"constraint"`
	Targets    []BindTargetDef `yaml:"targets"`
}

type BindDef struct {
	TriggerName string           `yaml:"trigger_name"`
	Cascades    []BindCascadeDef `yaml:"cascades"`
}

// Project is the fully-loaded, in-memory composition: enough to build a
// device graph, a set of patterns, and a bind map.
type Project struct {
	Channels    int          `yaml:"channels"`
	Tempo       float64      `yaml:"tempo"`
	Devices     []DeviceDef  `yaml:"devices"`
	Connections []ConnectionDef `yaml:"connections"`
	Patterns    []PatternDef `yaml:"patterns"`
	Song        []SongEntry  `yaml:"song"`
	Binds       []BindDef    `yaml:"binds"`
}

// LoadFixtureYAML parses a YAML-encoded Project, the shape tests use in
// place of a real p_*.json project (out of scope per spec §1).
func LoadFixtureYAML(data []byte) (*Project, error) {
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("project: invalid fixture: %w", err)
	}
	if p.Channels <= 0 {
		return nil, fmt.Errorf("project: channels must be positive")
	}
	return &p, nil
}

// PatternByID returns the pattern definition with the given id, or nil.
func (p *Project) PatternByID(id string) *PatternDef {
	for i := range p.Patterns {
		if p.Patterns[i].ID == id {
			return &p.Patterns[i]
		}
	}
	return nil
}
