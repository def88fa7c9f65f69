package repository

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

// yamlSource はソースファイルの1エントリ。enabledを省略した場合は有効とみなす。
type yamlSource struct {
	Name            string `yaml:"name"`
	Type            string `yaml:"type"`
	URL             string `yaml:"url"`
	DefaultCity     string `yaml:"default_city"`
	DefaultCategory string `yaml:"default_category"`
	Enabled         *bool  `yaml:"enabled"`
}

type yamlSourceFile struct {
	Sources []yamlSource `yaml:"sources"`
}

// YAMLSourceRegistry はYAMLファイルからソースを読み込むレジストリ。
// 実行のたびにファイルを読み直すため、編集はサーバーの再起動なしで反映される。
type YAMLSourceRegistry struct {
	path string
}

// NewYAMLSourceRegistry はYAMLSourceRegistryを生成する。
func NewYAMLSourceRegistry(path string) *YAMLSourceRegistry {
	return &YAMLSourceRegistry{path: path}
}

// ListEnabled は有効なソースをファイル内の順序で返す。URLのないエントリは読み飛ばす。
func (r *YAMLSourceRegistry) ListEnabled(_ context.Context) ([]model.Source, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("ソースファイルの読み込みに失敗しました: %w", err)
	}
	return ParseSourcesYAML(data)
}

// ParseSourcesYAML はソースファイルの内容から有効なソースを取り出す。
func ParseSourcesYAML(data []byte) ([]model.Source, error) {
	var f yamlSourceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ソースファイルの解析に失敗しました: %w", err)
	}

	var out []model.Source
	for _, s := range f.Sources {
		if s.Enabled != nil && !*s.Enabled {
			continue
		}
		u := strings.TrimSpace(s.URL)
		if u == "" {
			continue
		}
		name := strings.TrimSpace(s.Name)
		if name == "" {
			name = u
		}
		out = append(out, model.Source{
			Name:            name,
			Type:            model.ParseSourceType(s.Type),
			URL:             u,
			DefaultCity:     strings.TrimSpace(s.DefaultCity),
			DefaultCategory: strings.TrimSpace(s.DefaultCategory),
			Enabled:         true,
		})
	}
	return out, nil
}

// compile-time interface check
var _ SourceRegistry = (*YAMLSourceRegistry)(nil)
