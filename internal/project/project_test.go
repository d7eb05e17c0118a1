package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
channels: 2
tempo: 120
devices:
  - id: instrument-0
    type: sample
    out_ports: [out_00]
  - id: master
    type: mix
    in_ports: [in_00]
connections:
  - from_device: instrument-0
    from_port: out_00
    to_device: master
    to_port: in_00
patterns:
  - id: p0
    length_beats: 4
    length_rem: 0
    global:
      events: []
    channels:
      - events:
          - beats: 0
            rem: 0
            name: cn+
            arg: 440.0
          - beats: 2
            rem: 0
            name: cn-
song:
  - pattern_id: p0
    repeat: 1
binds:
  - trigger_name: cn+
    cascades:
      - constraint: "$ > 0"
        targets:
          - event_name: mv
            arg: "$"
`

func TestLoadFixtureYAMLParsesProject(t *testing.T) {
	p, err := LoadFixtureYAML([]byte(fixtureYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Channels)
	assert.Equal(t, 120.0, p.Tempo)
	require.Len(t, p.Patterns, 1)
	assert.Equal(t, "p0", p.Patterns[0].ID)
}

func TestLoadFixtureYAMLRejectsMissingChannels(t *testing.T) {
	_, err := LoadFixtureYAML([]byte("tempo: 120\n"))
	assert.Error(t, err)
}

func TestBuildPatternDecodesEventsIntoColumns(t *testing.T) {
	p, err := LoadFixtureYAML([]byte(fixtureYAML))
	require.NoError(t, err)

	pat, err := BuildPattern(p.PatternByID("p0"))
	require.NoError(t, err)
	require.Equal(t, 1, len(pat.Channels))
	assert.Equal(t, 2, pat.Channels[0].Len())
	assert.Equal(t, 440.0, pat.Channels[0].At(0).Event.Value.F)
}

func TestBuildBindsCompilesConstraintAndArgExpressions(t *testing.T) {
	p, err := LoadFixtureYAML([]byte(fixtureYAML))
	require.NoError(t, err)

	m, err := BuildBinds(p.Binds)
	require.NoError(t, err)
	assert.True(t, m.HasTrigger("cn+"))
}

func TestBuildPatternRejectsUnknownEventName(t *testing.T) {
	def := &PatternDef{
		LengthBeats: 1,
		Channels: []ColumnDef{
			{Events: []EventDef{{Name: "not_a_real_event"}}},
		},
	}
	_, err := BuildPattern(def)
	assert.Error(t, err)
}
