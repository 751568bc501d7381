package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// connectionFile is the on-disk shape of a provisioning bootstrap file.
type connectionFile struct {
	Connections []connectionFileEntry `yaml:"connections" toml:"connections"`
}

type connectionFileEntry struct {
	TenantID            string `yaml:"tenant_id" toml:"tenant_id"`
	Kind                string `yaml:"kind" toml:"kind"`
	Host                string `yaml:"host" toml:"host"`
	Port                int    `yaml:"port" toml:"port"`
	DatabaseName        string `yaml:"database_name" toml:"database_name"`
	Username            string `yaml:"username" toml:"username"`
	EncryptedCredential string `yaml:"encrypted_credential" toml:"encrypted_credential"`
}

// LoadConnectionsFile reads connection descriptors from a YAML or TOML file.
// The format is chosen by extension (.yaml, .yml, .toml).
func LoadConnectionsFile(path string) ([]ConnectionDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read connections file: %w", err)
	}
	return ParseConnections(filepath.Ext(path), data)
}

// ParseConnections decodes a bootstrap document. ext selects the decoder.
func ParseConnections(ext string, data []byte) ([]ConnectionDescriptor, error) {
	var file connectionFile

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode yaml connections: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode toml connections: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported connections file type %q", ext)
	}

	out := make([]ConnectionDescriptor, 0, len(file.Connections))
	for i, c := range file.Connections {
		d := ConnectionDescriptor{
			TenantID:            strings.TrimSpace(c.TenantID),
			Kind:                ConnectionKind(strings.ToLower(strings.TrimSpace(c.Kind))),
			Host:                c.Host,
			Port:                c.Port,
			DatabaseName:        c.DatabaseName,
			Username:            c.Username,
			EncryptedCredential: c.EncryptedCredential,
			Status:              ConnDisconnected,
		}
		if err := validateStruct(d); err != nil {
			return nil, fmt.Errorf("connection %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// RegisterAll registers descriptors in order, stopping at the first failure.
func RegisterAll(ctx context.Context, reg ConnectionRegistry, ds []ConnectionDescriptor) error {
	for _, d := range ds {
		if _, err := reg.Register(ctx, d); err != nil {
			return fmt.Errorf("register %s/%s: %w", d.TenantID, d.Kind, err)
		}
	}
	return nil
}
