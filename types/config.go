package types

// AppConfig represents the application configuration loaded from config file
type AppConfig struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
}

// ServerConfig configures the submission server.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	Protocol     string        `yaml:"protocol"` // http or https
	PublicURL    string        `yaml:"publicURL"`
	CSRF         bool          `yaml:"csrf"`
	MaxUploadMB  int64         `yaml:"maxUploadMB"`
	UploadRate   float64       `yaml:"uploadRate"`  // requests per second per client, 0 disables
	UploadBurst  int           `yaml:"uploadBurst"` // burst for uploadRate
	NotifySocket string        `yaml:"notifySocket,omitempty"`
	CertPEM      string        `yaml:"certPEM,omitempty"`
	KeyPEM       string        `yaml:"keyPEM,omitempty"`
	Storage      StorageConfig `yaml:"storage"`
	Repository   RepoConfig    `yaml:"repository"`
}

// StorageConfig selects where image blobs are kept.
type StorageConfig struct {
	Driver    string `yaml:"driver"` // local, s3, gcs
	LocalDir  string `yaml:"localDir,omitempty"`
	BaseURL   string `yaml:"baseURL,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"accessKey,omitempty"`
	SecretKey string `yaml:"secretKey,omitempty"`
}

// RepoConfig selects where product records are kept.
type RepoConfig struct {
	Driver    string `yaml:"driver"` // memory, firestore
	ProjectID string `yaml:"projectID,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"` // firestore collection prefix
}

// ClientConfig holds the values the upload page used to read from designated page elements.
type ClientConfig struct {
	BaseURL     string `yaml:"baseURL"`
	UploadURL   string `yaml:"uploadURL,omitempty"`
	DeleteURL   string `yaml:"deleteURL,omitempty"`
	ValidateURL string `yaml:"validateURL,omitempty"`
	SubmitURL   string `yaml:"submitURL,omitempty"`
	CSRFToken   string `yaml:"csrfToken,omitempty"`
	User        string `yaml:"user,omitempty"`
	Concurrency int    `yaml:"concurrency"`
}

// Config holds runtime overrides from CLI flags
type Config struct {
	Log           string
	UseConfigPath string
	UsePort       int
	UseHttps      bool
	UseBaseURL    string
	UseCSRFToken  string
	UseUser       string
	Concurrency   int
	SkipNotify    bool
}
