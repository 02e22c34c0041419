package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/japaniel/sieve/pkg/analyzer"
	"github.com/japaniel/sieve/pkg/anki"
	"github.com/japaniel/sieve/pkg/known"
)

// EnvPrefix prefixes every environment override, e.g. SIEVE_DATABASE_PATH.
const EnvPrefix = "SIEVE"

// Load reads configuration from path, or from sieve.yaml in the working
// directory or $HOME/.config/sieve when path is empty. A missing default file
// is not an error. Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sieve")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/sieve")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// Env lists arrive as one space separated string.
	if len(cfg.Language.Known) == 1 && strings.ContainsAny(cfg.Language.Known[0], " ,") {
		cfg.Language.Known = strings.FieldsFunc(cfg.Language.Known[0], func(r rune) bool { return r == ' ' || r == ',' })
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "sieve.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("language.target", "en")
	v.SetDefault("language.known", []string{})
	v.SetDefault("language.splitter", "auto")

	w := known.DefaultWeights()
	v.SetDefault("tracking.weights.seen", w.Seen)
	v.SetDefault("tracking.weights.lookup", w.Lookup)
	v.SetDefault("tracking.weights.mature_target", w.MatureTarget)
	v.SetDefault("tracking.weights.mature_context", w.MatureContext)
	v.SetDefault("tracking.weights.young_target", w.YoungTarget)
	v.SetDefault("tracking.weights.young_context", w.YoungContext)
	th := known.DefaultThresholds()
	v.SetDefault("tracking.threshold", th.Known)
	v.SetDefault("tracking.cognate_threshold", th.Cognate)
	v.SetDefault("tracking.lifetime_seconds", 1800)
	v.SetDefault("tracking.cognates_path", "")
	v.SetDefault("tracking.cognates_url", "")

	v.SetDefault("anki.enabled", false)
	v.SetDefault("anki.url", anki.DefaultURL)
	v.SetDefault("anki.timeout_seconds", 5)
	v.SetDefault("anki.query_mature", "prop:ivl>=14")
	v.SetDefault("anki.query_young", "prop:ivl<14 is:review")
	v.SetDefault("anki.fieldmap", map[string]interface{}{})

	v.SetDefault("analyzer.sentence_window", analyzer.DefaultSentenceWindow)
	v.SetDefault("analyzer.word_window", analyzer.DefaultWordWindow)
	v.SetDefault("analyzer.word_step", analyzer.DefaultWordStep)
	v.SetDefault("analyzer.learning_rate", analyzer.DefaultLearningRate)
	v.SetDefault("analyzer.seed", 0)
	v.SetDefault("analyzer.workers", 4)

	v.SetDefault("metrics.textfile", "")
}
