package types

// AppConfig represents the application configuration loaded from config file
type AppConfig struct {
	Port          int             `yaml:"port"`
	Endpoint      string          `yaml:"endpoint"`      // upload endpoint base URL, e.g. https://api.example.com/upload
	Destination   string          `yaml:"destination"`   // destination path field sent with every batch
	TokenEnv      string          `yaml:"tokenEnv"`      // env var holding the bearer credential, empty = unauthenticated
	SessionTTLMin int             `yaml:"sessionTTLMin"` // idle minutes before a session is evicted
	Policy        PolicyConfig    `yaml:"policy"`
	Transform     TransformConfig `yaml:"transform"`
	NotifySocket  string          `yaml:"notifySocket,omitempty"` // unix socket for settle notifications, empty = disabled
}

// PolicyConfig is the validation policy applied to every submitted file.
type PolicyConfig struct {
	AllowedKinds []string `yaml:"allowedKinds"`
	MinSize      int64    `yaml:"minSize"`
	MaxSize      int64    `yaml:"maxSize"`
	Capacity     int      `yaml:"capacity"`
}

// TransformConfig holds the optional server-side optimization options.
type TransformConfig struct {
	Resize      bool `yaml:"resize"`
	Compress    bool `yaml:"compress"`
	MaxWidth    int  `yaml:"maxWidth"`
	MaxHeight   int  `yaml:"maxHeight"`
	Quality     int  `yaml:"quality"`
	Concurrency int  `yaml:"concurrency"` // max parallel physical transfers per logical batch
}

// Config holds runtime overrides from CLI flags
type Config struct {
	Log           string
	UseConfigPath string
	UsePort       int
	UseEndpoint   string
	UseTokenEnv   string
	SkipNotify    bool // if true, skip unix socket settle notifications.
}
