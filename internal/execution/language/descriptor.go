package language

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/shlex"
)

// Descriptor knows how to name, build and run one language's source files.
type Descriptor interface {
	ID() Language
	Name() string
	// SourceFileName returns the file name the code must be written to.
	SourceFileName(code string) string
	// Commands returns the ordered argv list for the pipeline, each step
	// running only if the previous one exited with status 0.
	Commands(scratchDir, fileName string) ([][]string, error)
	// ProbeCommand returns an argv that exits 0 when the toolchain is installed.
	ProbeCommand() []string
}

var entryNamePattern = regexp.MustCompile(`^\w+$`)

type templateDescriptor struct {
	id          Language
	name        string
	extension   string
	defaultFile string
	entries     []*regexp.Regexp
	steps       [][]string
	probe       []string
}

func compileSpec(spec Spec) (*templateDescriptor, error) {
	id := Language(Normalize(string(spec.ID)))
	if id == "" {
		return nil, fmt.Errorf("language id is required")
	}
	ext := strings.TrimPrefix(strings.TrimSpace(spec.Extension), ".")
	if ext == "" {
		return nil, fmt.Errorf("language %s: extension is required", id)
	}
	if len(spec.Steps) == 0 {
		return nil, fmt.Errorf("language %s: at least one step is required", id)
	}

	d := &templateDescriptor{
		id:          id,
		name:        spec.Name,
		extension:   ext,
		defaultFile: spec.DefaultFile,
	}
	if d.name == "" {
		d.name = string(id)
	}
	if d.defaultFile == "" {
		d.defaultFile = "code." + ext
	}
	if filepath.Base(d.defaultFile) != d.defaultFile {
		return nil, fmt.Errorf("language %s: default file must be a bare file name", id)
	}

	for _, pattern := range spec.EntryPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("language %s: entry pattern %q: %w", id, pattern, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("language %s: entry pattern %q has no capture group", id, pattern)
		}
		d.entries = append(d.entries, re)
	}

	for i, tpl := range spec.Steps {
		fields, err := splitTemplate(tpl)
		if err != nil {
			return nil, fmt.Errorf("language %s: step %d: %w", id, i+1, err)
		}
		d.steps = append(d.steps, fields)
	}

	if strings.TrimSpace(spec.Probe) == "" {
		return nil, fmt.Errorf("language %s: probe is required", id)
	}
	probe, err := splitTemplate(spec.Probe)
	if err != nil {
		return nil, fmt.Errorf("language %s: probe: %w", id, err)
	}
	d.probe = probe

	return d, nil
}

func splitTemplate(tpl string) ([]string, error) {
	fields, err := shlex.Split(tpl)
	if err != nil {
		return nil, fmt.Errorf("parse command template failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("command template is empty")
	}
	return fields, nil
}

func (d *templateDescriptor) ID() Language { return d.id }

func (d *templateDescriptor) Name() string { return d.name }

func (d *templateDescriptor) SourceFileName(code string) string {
	for _, re := range d.entries {
		m := re.FindStringSubmatch(code)
		if len(m) < 2 {
			continue
		}
		if entryNamePattern.MatchString(m[1]) {
			return m[1] + "." + d.extension
		}
	}
	return d.defaultFile
}

func (d *templateDescriptor) Commands(scratchDir, fileName string) ([][]string, error) {
	if scratchDir == "" || fileName == "" {
		return nil, fmt.Errorf("scratch dir and file name are required")
	}
	replacer := strings.NewReplacer(
		"{dir}", scratchDir,
		"{file}", filepath.Join(scratchDir, fileName),
		"{name}", strings.TrimSuffix(fileName, filepath.Ext(fileName)),
	)

	cmds := make([][]string, 0, len(d.steps))
	for _, step := range d.steps {
		argv := make([]string, len(step))
		for i, field := range step {
			argv[i] = replacer.Replace(field)
		}
		cmds = append(cmds, argv)
	}
	return cmds, nil
}

func (d *templateDescriptor) ProbeCommand() []string {
	out := make([]string, len(d.probe))
	copy(out, d.probe)
	return out
}
