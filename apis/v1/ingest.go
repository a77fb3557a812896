package v1

const IngestJobKind = "IngestJob"

// IngestJob describes a batch of uploaded archives to extract and publish.
type IngestJob struct {
	Kind     string        `yaml:"kind" json:"kind" validate:"required,eq=IngestJob"`
	Metadata Metadata      `yaml:"metadata" json:"metadata"`
	Spec     IngestJobSpec `yaml:"spec" json:"spec"`
}

type Metadata struct {
	Name string `yaml:"name" json:"name" validate:"required"`
}

type IngestJobSpec struct {
	Sources []Source     `yaml:"sources" json:"sources" validate:"required,min=1,unique=ID,dive"`
	Staging *StagingSpec `yaml:"staging,omitempty" json:"staging,omitempty"`
	Filter  *FilterSpec  `yaml:"filter,omitempty" json:"filter,omitempty"`

	// Workers bounds how many sources are processed at once (default: 4).
	Workers *int        `yaml:"workers,omitempty" json:"workers,omitempty" validate:"omitempty,min=1,max=64"`
	Output  *OutputSpec `yaml:"output,omitempty" json:"output,omitempty"`
}

// Source is one uploaded archive. Exactly one of Path or URL must be set.
type Source struct {
	// ID names the source in the manifest and prefixes its published keys.
	ID   string  `yaml:"id" json:"id" validate:"required,max=128,excludesall=/\\"`
	Path *string `yaml:"path,omitempty" json:"path,omitempty" validate:"required_without=URL,excluded_with=URL" template:""`
	URL  *string `yaml:"url,omitempty" json:"url,omitempty" validate:"required_without=Path,excluded_with=Path" template:""`

	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// Timeout in seconds for URL sources.
	Timeout  *int `yaml:"timeout,omitempty" json:"timeout,omitempty" validate:"omitempty,min=1"`
	Insecure bool `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

type StagingSpec struct {
	// Path is the root under which one directory per source is created
	// (default: the OS temp dir).
	Path *string `yaml:"path,omitempty" json:"path,omitempty" template:""`

	// Keep leaves staging directories in place after publishing.
	Keep bool `yaml:"keep,omitempty" json:"keep,omitempty"`
}

type FilterSpec struct {
	// Extensions replaces the default image extension list.
	Extensions []string `yaml:"extensions,omitempty" json:"extensions,omitempty" validate:"omitempty,dive,required"`

	// Expression is a CEL predicate over name, path and size.
	Expression *string `yaml:"expression,omitempty" json:"expression,omitempty"`
}

// OutputSpec configures how media and the manifest are written.
type OutputSpec struct {
	// Encoding configures the manifest format (default: json with compact output).
	Encoding *EncodingSpec `yaml:"encoding,omitempty" json:"encoding,omitempty"`

	// Sink configures where output is written (default: stdout).
	Sink *SinkSpec `yaml:"sink,omitempty" json:"sink,omitempty"`

	// Archive bundles everything into one tar file before it reaches the sink.
	Archive *ArchiveSpec `yaml:"archive,omitempty" json:"archive,omitempty"`
}

// EncodingSpec configures the encoder (one of the fields should be set).
type EncodingSpec struct {
	JSON *JSONEncodingSpec `yaml:"json,omitempty" json:"json,omitempty"`
}

type JSONEncodingSpec struct {
	// Indent specifies indentation. Empty = compact, "  " = 2 spaces, "\t" = tabs.
	Indent string `yaml:"indent,omitempty" json:"indent,omitempty"`
}

// SinkSpec selects the destination (one of the fields should be set).
type SinkSpec struct {
	Stdout     *StdoutSinkSpec     `yaml:"stdout,omitempty" json:"stdout,omitempty"`
	Filesystem *FilesystemSinkSpec `yaml:"filesystem,omitempty" json:"filesystem,omitempty"`
	S3         *S3SinkSpec         `yaml:"s3,omitempty" json:"s3,omitempty"`
}

// StdoutSinkSpec prints the manifest only; media stays in staging.
type StdoutSinkSpec struct{}

type FilesystemSinkSpec struct {
	// Path defaults to the working directory.
	Path   *string `yaml:"path,omitempty" json:"path,omitempty" template:""`
	Prefix *string `yaml:"prefix,omitempty" json:"prefix,omitempty" template:""`
}

type S3SinkSpec struct {
	Bucket         string         `yaml:"bucket" json:"bucket" validate:"required" template:""`
	Region         *string        `yaml:"region,omitempty" json:"region,omitempty" template:""`
	Endpoint       *string        `yaml:"endpoint,omitempty" json:"endpoint,omitempty" validate:"omitempty,url" template:""`
	Prefix         *string        `yaml:"prefix,omitempty" json:"prefix,omitempty" template:""`
	ForcePathStyle bool           `yaml:"force_path_style,omitempty" json:"force_path_style,omitempty"`
	Credentials    *S3Credentials `yaml:"credentials,omitempty" json:"credentials,omitempty"`
}

type S3Credentials struct {
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id" validate:"required" template:""`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key" validate:"required" template:""`
}

type ArchiveSpec struct {
	// Name of the bundle without extension (default: the job name).
	Name        string `yaml:"name,omitempty" json:"name,omitempty" template:""`
	Compression string `yaml:"compression,omitempty" json:"compression,omitempty" validate:"omitempty,oneof=gzip zstd xz lz4 none"`
}
