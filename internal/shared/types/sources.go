package types

// TableSource 描述一个以 HTML 表格发布候选地址的页面。
// 列索引从 0 开始。
type TableSource struct {
	URL        string `yaml:"url"`
	RowSelect  string `yaml:"row_selector"`
	HostColumn int    `yaml:"host_column"`
	PortColumn int    `yaml:"port_column"`
	Scheme     string `yaml:"scheme,omitempty"`
}

// SourcesConf is the content of sources.yaml.
type SourcesConf struct {
	TrustedEndpoints []string      `yaml:"trusted_endpoints"`
	ExternalSources  []string      `yaml:"external_sources"`
	TableSources     []TableSource `yaml:"table_sources,omitempty"`
}
