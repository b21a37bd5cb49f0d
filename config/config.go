package config

import (
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/yaml.v3"

	"caselaw/corpus-parquet/convert"
	"caselaw/corpus-parquet/corpus"
	"caselaw/corpus-parquet/pkg/logging"
	"caselaw/corpus-parquet/schema"
	"caselaw/corpus-parquet/storage"
)

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ReaderConfig mirrors corpus.Options with single-character strings for the delimiter and quote.
type ReaderConfig struct {
	Delimiter       string `yaml:"delimiter"`
	Quote           string `yaml:"quote"`
	IDColumn        string `yaml:"id_column"`
	PlainTextColumn string `yaml:"plain_text_column"`
	HTMLColumn      string `yaml:"html_column"`
	ChunkSize       int    `yaml:"chunk_size"`
	MaxRecordBytes  int    `yaml:"max_record_bytes"`
}

type Config struct {
	// ConfigFile is the YAML file the rest of the fields were loaded from.
	ConfigFile string `yaml:"-"`

	// Input is a local path or a gs://bucket/object URI.
	Input           string `yaml:"input"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`

	Reader  ReaderConfig `yaml:"reader"`
	Workers int          `yaml:"workers"`
	Codec   string       `yaml:"codec"`

	Artifacts storage.BucketConfig `yaml:"artifacts"`
	PlainText storage.BucketConfig `yaml:"plain_text"`
	HTML      storage.BucketConfig `yaml:"html"`

	Log        LogConfig `yaml:"log"`
	HTTPListen string    `yaml:"http_listen,omitempty"`
	Progress   bool      `yaml:"progress"`
}

func Default() Config {
	opts := corpus.DefaultOptions()
	return Config{
		Input: "opinions.csv",
		Reader: ReaderConfig{
			Delimiter:       string(opts.Delimiter),
			Quote:           string(opts.Quote),
			IDColumn:        opts.IDColumn,
			PlainTextColumn: opts.PlainTextColumn,
			HTMLColumn:      opts.HTMLColumn,
			ChunkSize:       opts.ChunkSize,
			MaxRecordBytes:  opts.MaxRecordBytes,
		},
		Workers:   convert.DefaultWorkers,
		Codec:     schema.DefaultCodec,
		Artifacts: storage.BucketConfig{Type: storage.FilesystemType, Dir: "parquet_chunks"},
		PlainText: storage.BucketConfig{Type: storage.FilesystemType, Dir: "plain"},
		HTML:      storage.BucketConfig{Type: storage.FilesystemType, Dir: "html"},
		Log:       LogConfig{Level: "info", Format: logging.FormatLogfmt},
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed reading config file")
	}
	return Parse(content)
}

func Parse(content []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed parsing config")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = logging.FormatLogfmt
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Input == "" {
		return errors.New("input is required")
	}
	if _, err := c.Converter(); err != nil {
		return err
	}
	for name, b := range map[string]storage.BucketConfig{
		"artifacts":  c.Artifacts,
		"plain_text": c.PlainText,
		"html":       c.HTML,
	} {
		if err := b.Validate(); err != nil {
			return errors.Wrapf(err, "invalid %s output", name)
		}
	}
	return nil
}

// Converter returns the converter settings described by c.
func (c Config) Converter() (convert.Config, error) {
	delimiter, err := singleChar("delimiter", c.Reader.Delimiter)
	if err != nil {
		return convert.Config{}, err
	}
	quote, err := singleChar("quote", c.Reader.Quote)
	if err != nil {
		return convert.Config{}, err
	}

	cfg := convert.Config{
		Reader: corpus.Options{
			Delimiter:       delimiter,
			Quote:           quote,
			IDColumn:        c.Reader.IDColumn,
			PlainTextColumn: c.Reader.PlainTextColumn,
			HTMLColumn:      c.Reader.HTMLColumn,
			ChunkSize:       c.Reader.ChunkSize,
			MaxRecordBytes:  c.Reader.MaxRecordBytes,
		},
		Workers: c.Workers,
		Codec:   c.Codec,
	}
	return cfg, cfg.Validate()
}

func singleChar(name, s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, errors.Errorf("%s must be exactly one character, got %q", name, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// ParseArgs builds the configuration from command line arguments. args are parsed
// twice by kingpin: first against the defaults to find --config, then against the
// loaded file so that explicit flags override its values. newApp must return a fresh
// application on every call.
func ParseArgs(newApp func() *kingpin.Application, args []string) (Config, error) {
	first := Default()
	app := newApp()
	first.BindFlags(app)
	if _, err := app.Parse(args); err != nil {
		return Config{}, err
	}

	cfg, err := Load(first.ConfigFile)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfigFile = first.ConfigFile

	app = newApp()
	cfg.BindFlags(app)
	if _, err := app.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BindFlags registers flags that override the matching fields of c.
func (c *Config) BindFlags(app *kingpin.Application) {
	app.Flag("config", "YAML configuration file. Flags override its values.").
		PlaceHolder("FILE").Default(c.ConfigFile).StringVar(&c.ConfigFile)
	app.Flag("input", "Local path or gs:// URI of the opinions CSV.").
		Default(c.Input).StringVar(&c.Input)
	app.Flag("credentials-file", "Service account file used for gs:// inputs.").
		Default(c.CredentialsFile).StringVar(&c.CredentialsFile)
	app.Flag("artifact-dir", "Directory receiving the Parquet chunks.").
		Default(c.Artifacts.Dir).StringVar(&c.Artifacts.Dir)
	app.Flag("plain-dir", "Directory receiving one .txt file per opinion.").
		Default(c.PlainText.Dir).StringVar(&c.PlainText.Dir)
	app.Flag("html-dir", "Directory receiving one .html file per opinion.").
		Default(c.HTML.Dir).StringVar(&c.HTML.Dir)
	app.Flag("chunk-size", "Maximum number of opinions per chunk.").
		Default(itoa(c.Reader.ChunkSize)).IntVar(&c.Reader.ChunkSize)
	app.Flag("workers", "Number of chunks converted concurrently.").
		Default(itoa(c.Workers)).IntVar(&c.Workers)
	app.Flag("delimiter", "Field delimiter of the corpus.").
		Default(c.Reader.Delimiter).StringVar(&c.Reader.Delimiter)
	app.Flag("quote", "Quote character of the corpus.").
		Default(c.Reader.Quote).StringVar(&c.Reader.Quote)
	app.Flag("codec", "Parquet compression codec: snappy, zstd, gzip or none.").
		Default(c.Codec).StringVar(&c.Codec)
	app.Flag("log.level", "Log filtering level.").
		Default(c.Log.Level).EnumVar(&c.Log.Level, "debug", "info", "warn", "error")
	app.Flag("log.format", "Log format.").
		Default(c.Log.Format).EnumVar(&c.Log.Format, logging.FormatLogfmt, logging.FormatJSON)
	app.Flag("http-listen", "Address serving /metrics. Disabled when empty.").
		Default(c.HTTPListen).StringVar(&c.HTTPListen)
	app.Flag("progress", "Show a progress bar of processed chunks.").
		Default(boolString(c.Progress)).BoolVar(&c.Progress)
}

func itoa(i int) string { return strconv.Itoa(i) }

func boolString(b bool) string { return strconv.FormatBool(b) }
