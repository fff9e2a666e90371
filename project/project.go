// Package project serializes a whole session to disk and back. A project is
// a folder: project.json holds the metadata, audio/ holds the referenced
// audio files and cache/ is scratch space for the host. The on-disk file is
// JSON by default but YAML files load too.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Version is the project format version written into new projects.
const Version = "1.0"

type (
	// Data is the root of the serialized project.
	Data struct {
		Version            string          `json:"version" yaml:"version"`
		Name               string          `json:"name" yaml:"name"`
		Tempo              float64         `json:"tempo" yaml:"tempo"`
		SampleRate         int             `json:"sample_rate" yaml:"sample_rate"`
		TimeSigNumerator   int             `json:"time_sig_numerator" yaml:"time_sig_numerator"`
		TimeSigDenominator int             `json:"time_sig_denominator" yaml:"time_sig_denominator"`
		Tracks             []TrackData     `json:"tracks" yaml:"tracks"`
		AudioFiles         []AudioFileData `json:"audio_files" yaml:"audio_files"`
	}

	TrackData struct {
		ID       uint64       `json:"id" yaml:"id"`
		Name     string       `json:"name" yaml:"name"`
		Type     string       `json:"track_type" yaml:"track_type"`
		VolumeDB float32      `json:"volume_db" yaml:"volume_db"`
		Pan      float32      `json:"pan" yaml:"pan"`
		Mute     bool         `json:"mute" yaml:"mute"`
		Solo     bool         `json:"solo" yaml:"solo"`
		Armed    bool         `json:"armed" yaml:"armed"`
		Clips    []ClipData   `json:"clips" yaml:"clips"`
		FXChain  []EffectData `json:"fx_chain" yaml:"fx_chain"`

		SynthParams map[string]string `json:"synth_params,omitempty" yaml:"synth_params,omitempty"`
	}

	// ClipData is one timeline placement. Audio clips reference an entry in
	// the audio file table; MIDI clips carry their events inline.
	ClipData struct {
		ID           uint64      `json:"id" yaml:"id"`
		StartTime    float64     `json:"start_time" yaml:"start_time"`
		Offset       float64     `json:"offset" yaml:"offset"`
		Duration     float64     `json:"duration,omitempty" yaml:"duration,omitempty"`
		AudioFileID  *uint64     `json:"audio_file_id,omitempty" yaml:"audio_file_id,omitempty"`
		MIDIEvents   []EventData `json:"midi_events,omitempty" yaml:"midi_events,omitempty"`
		MIDIDuration int64       `json:"midi_duration_samples,omitempty" yaml:"midi_duration_samples,omitempty"`
	}

	// EventData is a note event with its time in samples from the clip start.
	EventData struct {
		On       bool  `json:"on" yaml:"on"`
		Note     byte  `json:"note" yaml:"note"`
		Velocity byte  `json:"velocity" yaml:"velocity"`
		Time     int64 `json:"time" yaml:"time"`
	}

	EffectData struct {
		Type       string             `json:"effect_type" yaml:"effect_type"`
		Parameters map[string]float32 `json:"parameters" yaml:"parameters"`
	}

	// AudioFileData is one entry in the audio file table. RelativePath is
	// relative to the project folder, e.g. "audio/001-drums.wav".
	AudioFileData struct {
		ID           uint64  `json:"id" yaml:"id"`
		OriginalName string  `json:"original_name" yaml:"original_name"`
		RelativePath string  `json:"relative_path" yaml:"relative_path"`
		Duration     float64 `json:"duration" yaml:"duration"`
		SampleRate   int     `json:"sample_rate" yaml:"sample_rate"`
		Channels     int     `json:"channels" yaml:"channels"`
	}
)

// New creates an empty project with default settings.
func New(name string) *Data {
	return &Data{
		Version:            Version,
		Name:               name,
		Tempo:              120,
		SampleRate:         48000,
		TimeSigNumerator:   4,
		TimeSigDenominator: 4,
	}
}

// Save writes the project folder: project.json plus the audio/ and cache/
// directories. Audio files themselves are copied separately with
// CopyAudioFile.
func Save(d *Data, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "audio"), 0o755); err != nil {
		return fmt.Errorf("creating audio directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "cache"), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	contents, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling project: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "project.json"), contents, 0o644); err != nil {
		return fmt.Errorf("writing project.json: %w", err)
	}
	return nil
}

// Load reads a project folder. The metadata file is parsed as JSON first and
// as YAML if that fails.
func Load(dir string) (*Data, error) {
	b, err := os.ReadFile(filepath.Join(dir, "project.json"))
	if err != nil {
		return nil, fmt.Errorf("reading project.json: %w", err)
	}
	var d Data
	if errJSON := json.Unmarshal(b, &d); errJSON != nil {
		if errYaml := yaml.Unmarshal(b, &d); errYaml != nil {
			return nil, fmt.Errorf("parsing project file: %v / %v", errYaml, errJSON)
		}
	}
	return &d, nil
}

// CopyAudioFile copies a source audio file into the project's audio/ folder,
// named by its table id, and returns the relative path for the table entry.
func CopyAudioFile(sourcePath, dir string, fileID uint64) (string, error) {
	audioDir := filepath.Join(dir, "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return "", fmt.Errorf("creating audio directory: %w", err)
	}
	name := filepath.Base(sourcePath)
	destName := fmt.Sprintf("%03d-%s", fileID, name)
	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", fmt.Errorf("reading audio file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(audioDir, destName), src, 0o644); err != nil {
		return "", fmt.Errorf("copying audio file: %w", err)
	}
	return "audio/" + destName, nil
}

// ResolveAudioPath turns a table entry's relative path into an absolute path
// within the project folder. Absolute paths (references to files outside the
// project) pass through unchanged.
func ResolveAudioPath(dir, relativePath string) string {
	if filepath.IsAbs(relativePath) {
		return relativePath
	}
	return filepath.Join(dir, relativePath)
}
