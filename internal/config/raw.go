package config

// rawDocument mirrors the YAML configuration document described in the
// external-interfaces section: root/state/log directories, tick cadence,
// the mailer and process-hygiene settings, and the ordered step list.
type rawDocument struct {
	RootDir                    string        `yaml:"root_dir"`
	StateDir                   string        `yaml:"state_dir"`
	LogDir                     string        `yaml:"log_dir"`
	TickInterval               string        `yaml:"tick_interval"`
	GlobalParallelism          *int          `yaml:"global_parallelism"`
	MailerExecutable           string        `yaml:"mailer_executable"`
	MailerArgsTemplate         []string      `yaml:"mailer_args_template"`
	ProcessHygiene             rawHygiene    `yaml:"process_hygiene"`
	ProcessHygieneGraceSeconds int           `yaml:"process_hygiene_grace_seconds"`
	HeartbeatAt                string        `yaml:"heartbeat_at"`
	Steps                      []rawStep     `yaml:"steps"`
}

type rawHygiene struct {
	Patterns []string `yaml:"patterns"`
}

type rawWindow struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type rawArtifactCheck struct {
	Folder       string `yaml:"folder"`
	Glob         string `yaml:"glob"`
	MinCount     int    `yaml:"min_count"`
	MinSizeBytes int64  `yaml:"min_size_bytes"`
	MinAgeMillis int64  `yaml:"min_age_millis"`
}

type rawStep struct {
	Name                    string            `yaml:"name"`
	Kind                    string            `yaml:"kind"`
	Action                  string            `yaml:"action"`
	Windows                 []rawWindow       `yaml:"windows"`
	Dependencies            []string          `yaml:"dependencies"`
	Executable              string            `yaml:"executable"`
	Arguments               []string          `yaml:"arguments"`
	WorkDir                 string            `yaml:"work_dir"`
	Timeout                 string            `yaml:"timeout"`
	MaxAttemptsPerWindow    int               `yaml:"max_attempts_per_window"`
	RequiredDaysOfWeek      []string          `yaml:"required_days_of_week"`
	CatchUp                 bool              `yaml:"catch_up"`
	ClosesApplicationOnExit bool              `yaml:"closes_application_on_exit"`
	ArtifactCheck           *rawArtifactCheck `yaml:"post_success_artifact_check"`
}
