package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config is the full application configuration record. It is persisted as a
// YAML file; unknown fields are ignored on read so old builds can open
// configs written by newer ones. Environment variables override file values.
type Config struct {
	LogLevel   string `yaml:"log_level"`
	StorageDir string `yaml:"storage_dir"`
	StatePath  string `yaml:"state_path"`

	// LLM endpoint (OpenAI-compatible chat completions).
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	ModelName string `yaml:"model_name"`

	PunctuateModelName    string `yaml:"punctuate_model_name"`
	PunctuateSystemPrompt string `yaml:"punctuate_system_prompt"`

	VernacularModelName    string `yaml:"vernacular_model_name"`
	VernacularSystemPrompt string `yaml:"vernacular_system_prompt"`

	ExplainModelName    string `yaml:"explain_model_name"`
	ExplainSystemPrompt string `yaml:"explain_system_prompt"`

	// OCR engine endpoint and recognition parameters. Every field below
	// participates in OCRSignature: changing one invalidates prior cache
	// entries deterministically.
	OCREndpoint            string  `yaml:"ocr_endpoint"`
	DetectionModelName     string  `yaml:"detection_model_name"`
	RecognitionModelName   string  `yaml:"recognition_model_name"`
	UseDocUnwarping        bool    `yaml:"use_doc_unwarping"`
	UseTextlineOrientation bool    `yaml:"use_textline_orientation"`
	DetLimitType           string  `yaml:"det_limit_type"`
	DetLimitSideLen        int     `yaml:"det_limit_side_len"`
	DetThresh              float64 `yaml:"det_thresh"`
	DetBoxThresh           float64 `yaml:"det_box_thresh"`
	DetUnclipRatio         float64 `yaml:"det_unclip_ratio"`
	RecScoreThresh         float64 `yaml:"rec_score_thresh"`

	// Pipeline tuning.
	RenderScale           float64 `yaml:"render_scale"`
	MergeOverlapThreshold float64 `yaml:"merge_overlap_threshold"`
	MaxConcurrentTasks    int     `yaml:"max_concurrent_tasks"`
	RetryMaxAttempts      int     `yaml:"retry_max_attempts"`
	LLMRequestsPerSecond  float64 `yaml:"llm_requests_per_second"`

	MetricsAddr string `yaml:"metrics_addr"`

	// Session restore.
	LastOpenFile string `yaml:"last_open_file"`
	LastOpenPage int    `yaml:"last_open_page"`
}

func Default() Config {
	return Config{
		LogLevel:   "info",
		StorageDir: "./ocr_results",
		StatePath:  "./ocr_results/state.db",

		BaseURL:   "",
		APIKey:    "",
		ModelName: "",

		PunctuateSystemPrompt:  defaultPunctuatePrompt,
		VernacularSystemPrompt: defaultVernacularPrompt,
		ExplainSystemPrompt:    defaultExplainPrompt,

		OCREndpoint:            "http://localhost:8868",
		DetectionModelName:     "PP-OCRv5_server_det",
		RecognitionModelName:   "PP-OCRv5_server_rec",
		UseDocUnwarping:        false,
		UseTextlineOrientation: true,
		DetLimitType:           "max",
		DetLimitSideLen:        736,
		DetThresh:              0.3,
		DetBoxThresh:           0.6,
		DetUnclipRatio:         1.5,
		RecScoreThresh:         0,

		RenderScale:           2.0,
		MergeOverlapThreshold: 0.5,
		MaxConcurrentTasks:    2,
		RetryMaxAttempts:      3,
		LLMRequestsPerSecond:  1,

		MetricsAddr: "",
	}
}

// applyEnv overlays environment overrides onto a loaded config.
func (c *Config) applyEnv() {
	c.LogLevel = envStr("READER_LOG_LEVEL", c.LogLevel)
	c.StorageDir = envStr("READER_STORAGE_DIR", c.StorageDir)
	c.StatePath = envStr("READER_STATE_PATH", c.StatePath)
	c.BaseURL = envStr("READER_LLM_BASE_URL", c.BaseURL)
	c.APIKey = envStr("READER_LLM_API_KEY", c.APIKey)
	c.ModelName = envStr("READER_LLM_MODEL", c.ModelName)
	c.OCREndpoint = envStr("READER_OCR_ENDPOINT", c.OCREndpoint)
	c.MaxConcurrentTasks = envInt("READER_MAX_CONCURRENT_TASKS", c.MaxConcurrentTasks)
	c.RetryMaxAttempts = envInt("READER_RETRY_MAX_ATTEMPTS", c.RetryMaxAttempts)
	c.MetricsAddr = envStr("READER_METRICS_ADDR", c.MetricsAddr)
}

// Validate rejects malformed records at load time rather than at use sites.
func (c Config) Validate() error {
	if c.BaseURL != "" {
		if err := validateEndpoint("base_url", c.BaseURL); err != nil {
			return err
		}
	}
	if err := validateEndpoint("ocr_endpoint", c.OCREndpoint); err != nil {
		return err
	}
	if c.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("max_concurrent_tasks must be positive, got %d", c.MaxConcurrentTasks)
	}
	if c.MergeOverlapThreshold <= 0 || c.MergeOverlapThreshold > 1 {
		return fmt.Errorf("merge_overlap_threshold must be in (0,1], got %g", c.MergeOverlapThreshold)
	}
	if c.DetLimitType != "max" && c.DetLimitType != "min" {
		return fmt.Errorf("det_limit_type must be max or min, got %q", c.DetLimitType)
	}
	return nil
}

func validateEndpoint(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: unsupported scheme %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: missing host", field)
	}
	return nil
}

// OCRSignature is the deterministic signature of every OCR-affecting
// parameter, one of the three fingerprint inputs.
func (c Config) OCRSignature() string {
	parts := []string{
		"det=" + c.DetectionModelName,
		"rec=" + c.RecognitionModelName,
		"unwarp=" + strconv.FormatBool(c.UseDocUnwarping),
		"textline=" + strconv.FormatBool(c.UseTextlineOrientation),
		"limit=" + c.DetLimitType + ":" + strconv.Itoa(c.DetLimitSideLen),
		"det_thresh=" + strconv.FormatFloat(c.DetThresh, 'g', -1, 64),
		"box_thresh=" + strconv.FormatFloat(c.DetBoxThresh, 'g', -1, 64),
		"unclip=" + strconv.FormatFloat(c.DetUnclipRatio, 'g', -1, 64),
		"rec_thresh=" + strconv.FormatFloat(c.RecScoreThresh, 'g', -1, 64),
	}
	return strings.Join(parts, "|")
}

// StageModel resolves the model for one AI stage, falling back to the
// default model when the stage has no dedicated one.
func (c Config) StageModel(stage string) string {
	var name string
	switch stage {
	case "punctuate":
		name = c.PunctuateModelName
	case "vernacular":
		name = c.VernacularModelName
	case "explain":
		name = c.ExplainModelName
	}
	if strings.TrimSpace(name) == "" {
		return c.ModelName
	}
	return name
}

// StagePrompt resolves the system prompt for one AI stage.
func (c Config) StagePrompt(stage string) string {
	var prompt string
	switch stage {
	case "punctuate":
		prompt = c.PunctuateSystemPrompt
	case "vernacular":
		prompt = c.VernacularSystemPrompt
	case "explain":
		prompt = c.ExplainSystemPrompt
	}
	if strings.TrimSpace(prompt) == "" {
		return defaultFallbackPrompt
	}
	return prompt
}

func envStr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
