package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"relaypool/internal/shared/types"
)

// DefaultExternalSources is used when no sources file exists.
var DefaultExternalSources = []string{
	"https://api.proxyscrape.com/v2/?request=getproxies&protocol=http&format=textplain&country=all",
	"https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/http.txt",
	"https://raw.githubusercontent.com/clarketm/proxy-list/master/proxy-list-raw.txt",
	"https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/http.txt",
	"https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/http.txt",
	"https://raw.githubusercontent.com/proxy4parsing/proxy-list/main/http.txt",
	"https://api.openproxylist.xyz/http.txt",
	"https://raw.githubusercontent.com/sunny9577/proxy-scraper/master/proxies.txt",
}

// LoadIni 加载 relaypool.ini 行为配置文件。文件不存在时使用默认值。
func LoadIni(cfg *types.Config, fileName string) error {
	// Loose 模式下缺失的文件被视为空配置
	iniFile, err := ini.LoadSources(ini.LoadOptions{Loose: true}, fileName)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	overrideFromEnvString(&cfg.PoolConf.ProbeTarget, "RELAYPOOL_PROBE_TARGET")
	overrideFromEnvString(&cfg.LogConf.Level, "RELAYPOOL_LOG_LEVEL")
	overrideFromEnvInt(&cfg.WebConf.Port, "RELAYPOOL_WEB_PORT")
	cfg.ApplyDefaults()
	return nil
}

// LoadSources 加载 sources.yaml。文件不存在时返回内置的默认来源列表。
func LoadSources(fileName string) (*types.SourcesConf, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSources(), nil
		}
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	sources := &types.SourcesConf{}
	if err := yaml.Unmarshal(data, sources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", fileName, err)
	}
	return sources, nil
}

// DefaultSources returns a fresh copy of the built-in source list.
func DefaultSources() *types.SourcesConf {
	return &types.SourcesConf{
		ExternalSources: append([]string(nil), DefaultExternalSources...),
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}
