package language

// Spec is the declarative form of a language entry. It is loaded from the
// `languages:` section of the service config or taken from DefaultSpecs.
//
// Step and probe templates are split into argv with shell quoting rules and
// then expanded per argument:
//
//	{dir}  absolute scratch directory
//	{file} absolute path of the written source file
//	{name} source file name without extension
type Spec struct {
	ID            Language `yaml:"id"`
	Name          string   `yaml:"name"`
	Aliases       []string `yaml:"aliases"`
	Extension     string   `yaml:"extension"`
	DefaultFile   string   `yaml:"defaultFile"`
	EntryPatterns []string `yaml:"entryPatterns"`
	Steps         []string `yaml:"steps"`
	Probe         string   `yaml:"probe"`
}

// DefaultSpecs returns the built-in language table.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			ID:        Python,
			Name:      "Python 3",
			Aliases:   []string{"PY", "PYTHON3"},
			Extension: "py",
			Steps:     []string{"python3 {file}"},
			Probe:     "python3 --version",
		},
		{
			ID:          Java,
			Name:        "Java",
			Extension:   "java",
			DefaultFile: "code.java",
			EntryPatterns: []string{
				`public\s+class\s+(\w+)`,
				`class\s+(\w+)`,
			},
			Steps: []string{
				"javac {file}",
				"java -cp {dir} {name}",
			},
			Probe: "javac -version",
		},
		{
			ID:        JavaScript,
			Name:      "JavaScript (Node.js)",
			Aliases:   []string{"JS", "NODE"},
			Extension: "js",
			Steps:     []string{"node {file}"},
			Probe:     "node --version",
		},
		{
			ID:        Cpp,
			Name:      "C++",
			Aliases:   []string{"C++", "G++"},
			Extension: "cpp",
			Steps: []string{
				"g++ {file} -o {dir}/program",
				"{dir}/program",
			},
			Probe: "g++ --version",
		},
	}
}
